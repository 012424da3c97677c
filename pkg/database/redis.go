package database

import (
	"context"
	"fmt"

	"github.com/agentcord/agentflow/pkg/config"
	"github.com/go-redis/redis/v8"
)

// NewRedisClient conecta a Redis. El cliente respalda el lock de identidad
// que serializa los webhooks de cada usuario, así que la conexión se valida
// al arrancar en vez de fallar en el primer mensaje.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  connectTimeout,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// CloseRedis cierra la conexión a Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
