package audit

import "context"

// Store persists admission decisions.
type Store interface {
	SaveDecision(ctx context.Context, event *AdmissionDecidedEvent) error
}
