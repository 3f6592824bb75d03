package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/gatekeeper/internal/audit"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS admission_decisions (
		decision_id TEXT PRIMARY KEY,
		recipient   TEXT        NOT NULL,
		allowed     BOOLEAN     NOT NULL,
		decided_at  TIMESTAMPTZ NOT NULL,
		client_ip   TEXT,
		user_agent  TEXT
	)
`

// PostgresAuditStore is a PostgreSQL implementation of audit.Store.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditStore creates a new PostgreSQL-backed audit store.
func NewPostgresAuditStore(pool *pgxpool.Pool) *PostgresAuditStore {
	return &PostgresAuditStore{pool: pool}
}

// EnsureSchema creates the decisions table if it does not exist.
func (p *PostgresAuditStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, auditSchema)

	return err
}

// SaveDecision inserts the decision. Redelivered events are ignored.
func (p *PostgresAuditStore) SaveDecision(ctx context.Context, event *audit.AdmissionDecidedEvent) error {
	query := `
		INSERT INTO admission_decisions (decision_id, recipient, allowed, decided_at, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (decision_id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.DecisionID,
		event.Recipient,
		event.Allowed,
		event.DecidedAt,
		nullableString(event.ClientIP),
		nullableString(event.UserAgent),
	)

	return err
}

// CountDecisions returns how many decisions were stored for recipient.
func (p *PostgresAuditStore) CountDecisions(ctx context.Context, recipient string) (allowed, denied int64, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE allowed),
			COUNT(*) FILTER (WHERE NOT allowed)
		FROM admission_decisions
		WHERE recipient = $1
	`

	err = p.pool.QueryRow(ctx, query, recipient).Scan(&allowed, &denied)

	return allowed, denied, err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

var _ audit.Store = (*PostgresAuditStore)(nil)
