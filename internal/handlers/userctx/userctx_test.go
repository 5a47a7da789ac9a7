package userctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/crmauth/internal/models"
)

func TestUserCtx(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		claims := models.TokenClaims{Subject: uuid.New(), Kind: models.TokenKindAccess}

		got, ok := FromContext(New(t.Context(), claims))

		require.True(t, ok)
		assert.Equal(t, claims, got)
	})

	t.Run("empty context", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		assert.False(t, ok)
	})
}
