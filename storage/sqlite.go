package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vigil/core"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const alertSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	rule_name TEXT NOT NULL,
	severity TEXT NOT NULL,
	status TEXT NOT NULL,
	triggered_at TIMESTAMP NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP,
	investigation_started_at TIMESTAMP,
	resolved_at TIMESTAMP,
	closed_at TIMESTAMP,
	false_positive_at TIMESTAMP,
	source_ip TEXT,
	destination_ip TEXT,
	aggregation_count INTEGER NOT NULL DEFAULT 0,
	aggregation_value REAL NOT NULL DEFAULT 0,
	dedup_key TEXT,
	matched_conditions TEXT,
	context TEXT,
	status_history TEXT
);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_triggered ON alerts(rule_id, triggered_at);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(dedup_key);
`

// SQLiteAlertStore implements AlertStore on SQLite. Variable-shaped fields
// (history, context, matched conditions) are stored as JSON columns; the
// queryable dimensions get real columns and indexes.
type SQLiteAlertStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteAlertStore opens (creating if needed) the alert database at path.
// WAL mode keeps readers unblocked by the single writer.
func NewSQLiteAlertStore(path string, logger *zap.SugaredLogger) (*SQLiteAlertStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database %s: %w", path, err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on one
	// connection; a single pooled connection sidesteps SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(alertSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create alert schema: %w", err)
	}

	logger.Infow("Alert store ready", "path", path)
	return &SQLiteAlertStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteAlertStore) Close() error {
	return s.db.Close()
}

// Create persists a new alert.
func (s *SQLiteAlertStore) Create(ctx context.Context, alert *core.Alert) error {
	matched, history, alertCtx, err := marshalJSONColumns(alert)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, rule_id, rule_name, severity, status,
			triggered_at, first_seen, last_seen, created_at, updated_at,
			acknowledged_at, investigation_started_at, resolved_at, closed_at, false_positive_at,
			source_ip, destination_ip, aggregation_count, aggregation_value, dedup_key,
			matched_conditions, context, status_history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleID, alert.RuleName, alert.Severity, alert.Status.String(),
		alert.TriggeredAt, alert.FirstSeen, alert.LastSeen, alert.CreatedAt, alert.UpdatedAt,
		alert.AcknowledgedAt, alert.InvestigationStartedAt, alert.ResolvedAt, alert.ClosedAt, alert.FalsePositiveAt,
		alert.SourceIP, alert.DestinationIP, alert.AggregationCount, alert.AggregationValue, alert.DedupKey,
		matched, alertCtx, history,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetByID returns the alert, ErrAlertNotFound when absent.
func (s *SQLiteAlertStore) GetByID(ctx context.Context, id string) (*core.Alert, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM alerts WHERE id = ?", id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	return alert, nil
}

// Update overwrites the stored alert.
func (s *SQLiteAlertStore) Update(ctx context.Context, alert *core.Alert) error {
	matched, history, alertCtx, err := marshalJSONColumns(alert)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET
			status = ?, last_seen = ?, updated_at = ?,
			acknowledged_at = ?, investigation_started_at = ?, resolved_at = ?, closed_at = ?, false_positive_at = ?,
			aggregation_count = ?, aggregation_value = ?,
			matched_conditions = ?, context = ?, status_history = ?
		WHERE id = ?`,
		alert.Status.String(), alert.LastSeen, alert.UpdatedAt,
		alert.AcknowledgedAt, alert.InvestigationStartedAt, alert.ResolvedAt, alert.ClosedAt, alert.FalsePositiveAt,
		alert.AggregationCount, alert.AggregationValue,
		matched, alertCtx, history,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of alert %s: %w", alert.ID, err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListByRule returns alerts for ruleID triggered at or after since, newest first.
func (s *SQLiteAlertStore) ListByRule(ctx context.Context, ruleID string, since time.Time) ([]*core.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM alerts WHERE rule_id = ? AND triggered_at >= ? ORDER BY triggered_at DESC",
		ruleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var alerts []*core.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

const selectColumns = `SELECT
	id, rule_id, rule_name, severity, status,
	triggered_at, first_seen, last_seen, created_at, updated_at,
	acknowledged_at, investigation_started_at, resolved_at, closed_at, false_positive_at,
	source_ip, destination_ip, aggregation_count, aggregation_value, dedup_key,
	matched_conditions, context, status_history`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*core.Alert, error) {
	var a core.Alert
	var status string
	var matched, alertCtx, history sql.NullString

	err := row.Scan(
		&a.ID, &a.RuleID, &a.RuleName, &a.Severity, &status,
		&a.TriggeredAt, &a.FirstSeen, &a.LastSeen, &a.CreatedAt, &a.UpdatedAt,
		&a.AcknowledgedAt, &a.InvestigationStartedAt, &a.ResolvedAt, &a.ClosedAt, &a.FalsePositiveAt,
		&a.SourceIP, &a.DestinationIP, &a.AggregationCount, &a.AggregationValue, &a.DedupKey,
		&matched, &alertCtx, &history,
	)
	if err != nil {
		return nil, err
	}

	a.Status = core.AlertStatus(status)
	if matched.Valid && matched.String != "" {
		if err := json.Unmarshal([]byte(matched.String), &a.MatchedConditions); err != nil {
			return nil, fmt.Errorf("failed to decode matched_conditions for alert %s: %w", a.ID, err)
		}
	}
	if alertCtx.Valid && alertCtx.String != "" {
		if err := json.Unmarshal([]byte(alertCtx.String), &a.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context for alert %s: %w", a.ID, err)
		}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &a.StatusHistory); err != nil {
			return nil, fmt.Errorf("failed to decode status_history for alert %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func marshalJSONColumns(alert *core.Alert) (matched, history, alertCtx string, err error) {
	m, err := json.Marshal(alert.MatchedConditions)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode matched_conditions for alert %s: %w", alert.ID, err)
	}
	h, err := json.Marshal(alert.StatusHistory)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode status_history for alert %s: %w", alert.ID, err)
	}
	c, err := json.Marshal(alert.Context)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode context for alert %s: %w", alert.ID, err)
	}
	return string(m), string(h), string(c), nil
}
