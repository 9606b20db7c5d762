package storage

import (
	"context"

	"github.com/terra-clan/koi-prep/internal/models"
)

// CallFilter narrows a ledger listing
type CallFilter struct {
	Operation models.GatewayOperation
	Failed    *bool
	Limit     int
	Offset    int
}

// OperationStats aggregates ledger entries of one operation
type OperationStats struct {
	Operation     models.GatewayOperation `json:"operation"`
	Calls         int64                   `json:"calls"`
	Failures      int64                   `json:"failures"`
	AvgAttempts   float64                 `json:"avg_attempts"`
	AvgDurationMS float64                 `json:"avg_duration_ms"`
}

// Repository defines the gateway call ledger. Session data never goes
// through it.
type Repository interface {
	// Calls
	RecordCall(ctx context.Context, call *models.GatewayCall) error
	ListCalls(ctx context.Context, filter CallFilter) ([]*models.GatewayCall, error)
	CallStats(ctx context.Context) ([]*OperationStats, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
