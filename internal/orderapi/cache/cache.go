// Package cache keeps recent order responses so replays with a known
// idempotency key skip the database.
package cache

import (
	"context"
	"errors"

	"github.com/fjod/posify/internal/contract"
)

type ReplayCache interface {
	Get(ctx context.Context, organizationID, key string) (*contract.CreateOrderResponse, error)
	Set(ctx context.Context, organizationID, key string, resp *contract.CreateOrderResponse) error
}

var ErrCacheMiss = errors.New("cache miss")
