package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/handlers/render"
	"github.com/nkiryanov/crmauth/internal/handlers/userctx"
	"github.com/nkiryanov/crmauth/internal/logger"
)

const maxActivityLimit = 200

// Recent audit events of the caller
func handleActivity(s auditService, l logger.Logger) http.Handler {
	type event struct {
		ID         uuid.UUID  `json:"id"`
		Activity   string     `json:"activity"`
		EntityType string     `json:"entityType"`
		EntityID   *uuid.UUID `json:"entityId,omitempty"`
		Details    string     `json:"details,omitempty"`
		CreatedAt  time.Time  `json:"createdAt"`
	}
	type response struct {
		Events []event `json:"events"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxActivityLimit {
				render.ServiceError(w, "limit must be between 1 and 200", http.StatusBadRequest)
				return
			}
			limit = n
		}

		events, err := s.ListUserActivity(r.Context(), claims.Subject, limit)
		if err != nil {
			l.Error("Activity list failed", "user_id", claims.Subject, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := response{Events: make([]event, 0, len(events))}
		for _, e := range events {
			res.Events = append(res.Events, event{
				ID:         e.ID,
				Activity:   e.Activity,
				EntityType: e.EntityType,
				EntityID:   e.EntityID,
				Details:    e.Details,
				CreatedAt:  e.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}
