package store

import (
	"context"

	"github.com/serroba/gatekeeper/internal/audit"
	"go.uber.org/zap"
)

// Noop is an implementation of audit.Store that only logs decisions.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new logging-only audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveDecision(_ context.Context, event *audit.AdmissionDecidedEvent) error {
	n.logger.Info("admission decision received",
		zap.String("decisionId", event.DecisionID),
		zap.String("recipient", event.Recipient),
		zap.Bool("allowed", event.Allowed),
		zap.Time("decidedAt", event.DecidedAt),
	)

	return nil
}

var _ audit.Store = (*Noop)(nil)
