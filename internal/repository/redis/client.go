package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "crmauth:"

// Connect creates client and checks the server answers
func Connect(ctx context.Context, addr string, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis is not reachable at %s. Err: %w", addr, err)
	}

	return client, nil
}
