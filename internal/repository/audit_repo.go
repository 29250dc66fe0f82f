package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/model"
)

// AuditRepository records host connections and webview lifecycles.
// Its observer methods never fail the caller; write errors are logged.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WebviewCreated inserts a running webview.
func (r *AuditRepository) WebviewCreated(ctx context.Context, rec model.WebviewRecord) {
	if err := r.CreateWebview(ctx, &rec); err != nil {
		log.Warn().Err(err).Str("webview", rec.ID).Msg("audit write failed")
	}
}

// WebviewDisposed marks a webview disposed.
func (r *AuditRepository) WebviewDisposed(ctx context.Context, id string, origin model.DisposeOrigin, at time.Time) {
	if err := r.MarkWebviewDisposed(ctx, id, origin, at); err != nil {
		log.Warn().Err(err).Str("webview", id).Msg("audit write failed")
	}
}

// ConnectionOpened inserts a host connection.
func (r *AuditRepository) ConnectionOpened(ctx context.Context, rec model.ConnectionRecord) {
	if err := r.CreateConnection(ctx, &rec); err != nil {
		log.Warn().Err(err).Str("peer", rec.ID).Msg("audit write failed")
	}
}

// ConnectionClosed stamps a host connection's end.
func (r *AuditRepository) ConnectionClosed(ctx context.Context, id string, at time.Time, failedPending int) {
	if err := r.MarkConnectionClosed(ctx, id, at, failedPending); err != nil {
		log.Warn().Err(err).Str("peer", id).Msg("audit write failed")
	}
}

// CreateWebview inserts a new webview record.
func (r *AuditRepository) CreateWebview(ctx context.Context, rec *model.WebviewRecord) error {
	query := `
		INSERT INTO webviews (id, title, view_column, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Title, rec.Column, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webview record: %w", err)
	}
	return nil
}

// MarkWebviewDisposed moves a webview record to disposed.
func (r *AuditRepository) MarkWebviewDisposed(ctx context.Context, id string, origin model.DisposeOrigin, at time.Time) error {
	query := `
		UPDATE webviews
		SET status = ?, dispose_origin = ?, disposed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.WebviewStatusDisposed, origin, at, id, model.WebviewStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update webview record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrWebviewNotFound
	}
	return nil
}

// GetWebview retrieves a webview record by its ID.
func (r *AuditRepository) GetWebview(ctx context.Context, id string) (*model.WebviewRecord, error) {
	query := `
		SELECT id, title, view_column, status, dispose_origin, created_at, disposed_at
		FROM webviews
		WHERE id = ?
	`

	rec, err := scanWebview(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrWebviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webview record: %w", err)
	}
	return rec, nil
}

// ListWebviews returns the most recently created webviews, newest first.
func (r *AuditRepository) ListWebviews(ctx context.Context, limit int) ([]*model.WebviewRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, title, view_column, status, dispose_origin, created_at, disposed_at
		FROM webviews
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webview records: %w", err)
	}
	defer rows.Close()

	var records []*model.WebviewRecord
	for rows.Next() {
		rec, err := scanWebview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webview record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webview records: %w", err)
	}
	return records, nil
}

// CountRunningWebviews returns how many webviews are recorded as running.
func (r *AuditRepository) CountRunningWebviews(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webviews WHERE status = ?`, model.WebviewStatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running webviews: %w", err)
	}
	return count, nil
}

// CreateConnection inserts a new connection record.
func (r *AuditRepository) CreateConnection(ctx context.Context, rec *model.ConnectionRecord) error {
	query := `
		INSERT INTO connections (id, remote_addr, connected_at)
		VALUES (?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.RemoteAddr, rec.ConnectedAt); err != nil {
		return fmt.Errorf("failed to create connection record: %w", err)
	}
	return nil
}

// MarkConnectionClosed stamps the end of a connection.
func (r *AuditRepository) MarkConnectionClosed(ctx context.Context, id string, at time.Time, failedPending int) error {
	query := `
		UPDATE connections
		SET disconnected_at = ?, failed_pending = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, at, failedPending, id)
	if err != nil {
		return fmt.Errorf("failed to update connection record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrConnectionNotFound
	}
	return nil
}

// GetConnection retrieves a connection record by its ID.
func (r *AuditRepository) GetConnection(ctx context.Context, id string) (*model.ConnectionRecord, error) {
	query := `
		SELECT id, remote_addr, connected_at, disconnected_at, failed_pending
		FROM connections
		WHERE id = ?
	`

	rec := &model.ConnectionRecord{}
	var disconnectedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.RemoteAddr,
		&rec.ConnectedAt,
		&disconnectedAt,
		&rec.FailedPending,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection record: %w", err)
	}

	if disconnectedAt.Valid {
		t := disconnectedAt.Time
		rec.DisconnectedAt = &t
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebview(row rowScanner) (*model.WebviewRecord, error) {
	rec := &model.WebviewRecord{}
	var origin sql.NullString
	var disposedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Column,
		&rec.Status,
		&origin,
		&rec.CreatedAt,
		&disposedAt,
	)
	if err != nil {
		return nil, err
	}

	if origin.Valid {
		rec.DisposeOrigin = model.DisposeOrigin(origin.String)
	}
	if disposedAt.Valid {
		t := disposedAt.Time
		rec.DisposedAt = &t
	}
	return rec, nil
}
