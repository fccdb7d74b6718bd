package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/banking/compliance-engine/internal/config"
	"github.com/banking/compliance-engine/internal/domain"
)

// VelocityStore keeps per-user rolling window aggregates in Redis. Count and
// sum are updated in one pipeline so two concurrent observations for the
// same user each see the other reflected in at least one returned window.
type VelocityStore struct {
	client *redis.Client
	window time.Duration
}

func NewVelocityStore(cfg config.RedisConfig, window time.Duration) (*VelocityStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &VelocityStore{client: client, window: window}, nil
}

// Close releases the underlying client.
func (s *VelocityStore) Close() error {
	return s.client.Close()
}

// Observe folds one transaction into the user's window and returns the
// updated aggregate. Amounts are held as integer cents; the window key
// expires after the configured duration, measured from the first
// observation in the window.
func (s *VelocityStore) Observe(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, at time.Time) (*domain.VelocityWindow, error) {
	countKey := fmt.Sprintf("velocity:%s:count", userID)
	sumKey := fmt.Sprintf("velocity:%s:sum", userID)
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	pipe := s.client.TxPipeline()
	countCmd := pipe.Incr(ctx, countKey)
	sumCmd := pipe.IncrBy(ctx, sumKey, cents)
	pipe.ExpireNX(ctx, countKey, s.window)
	pipe.ExpireNX(ctx, sumKey, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to update velocity window: %w", err)
	}

	sum := decimal.NewFromInt(sumCmd.Val()).Div(decimal.NewFromInt(100))
	return &domain.VelocityWindow{
		UserID:      userID,
		Count:       countCmd.Val(),
		Sum:         sum,
		WindowStart: at.Add(-s.window),
		WindowEnd:   at,
	}, nil
}
