package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS %s (
    scored_at   DateTime64(3) CODEC(Delta, ZSTD),
    user_id     String,
    risk_score  Float64,
    decision    LowCardinality(String),
    reasons     String,
    cold_start  UInt8,
    degraded    UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(scored_at)
ORDER BY (user_id, scored_at)
TTL toDateTime(scored_at) + INTERVAL 90 DAY
`

// ClickHouseAudit persists issued decisions for offline review. The
// decision path treats it as best-effort: a failed insert is logged and
// dropped, never surfaced to the caller.
type ClickHouseAudit struct {
	db    *sql.DB
	table string
}

// NewClickHouseAudit creates the audit sink on an established connection.
func NewClickHouseAudit(db *sql.DB, table string) *ClickHouseAudit {
	return &ClickHouseAudit{db: db, table: table}
}

// Init creates the audit table if absent.
func (a *ClickHouseAudit) Init(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(auditSchema, a.table)); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

func (a *ClickHouseAudit) Record(ctx context.Context, d *models.Decision) error {
	q := fmt.Sprintf("INSERT INTO %s (scored_at, user_id, risk_score, decision, reasons, cold_start, degraded) VALUES (?, ?, ?, ?, ?, ?, ?)", a.table)
	_, err := a.db.ExecContext(ctx, q,
		d.ScoredAt,
		d.UserID,
		d.RiskScore,
		string(d.Outcome),
		strings.Join(d.Reasons, ","),
		boolToUInt8(d.ColdStart),
		boolToUInt8(d.Degraded),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (a *ClickHouseAudit) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *ClickHouseAudit) Close() error {
	return nil // connection owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ drepo.AuditLog = (*ClickHouseAudit)(nil)
