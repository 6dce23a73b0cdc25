package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotkeeper/internal/models"
	"slotkeeper/internal/schedule"
	"slotkeeper/internal/weekclock"
)

// CreateBusiness inserts a business. CreatedAt and UpdatedAt are set here.
func (db *DB) CreateBusiness(ctx context.Context, b *models.Business) error {
	now := dbTime(time.Now())
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, email, timezone, is_active, auto_approve, operates_non_stop, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Email, b.Timezone, b.IsActive, b.AutoApprove, b.NonStop, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create business %s: %w", b.ID, err)
	}
	return nil
}

// GetBusiness returns the business or ErrNotFound.
func (db *DB) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	var email sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, name, email, timezone, is_active, auto_approve, operates_non_stop, created_at, updated_at
		FROM businesses WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &email, &b.Timezone, &b.IsActive, &b.AutoApprove, &b.NonStop, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("business %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get business %s: %w", id, err)
	}
	b.Email = email.String
	return &b, nil
}

// LoadSchedule returns the business's weekly hours in stored order.
func (db *DB) LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error) {
	var s schedule.Schedule
	err := db.QueryRowContext(ctx,
		`SELECT operates_non_stop FROM businesses WHERE id = ?`, businessID,
	).Scan(&s.NonStop)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("business %s: %w", businessID, ErrNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("load schedule %s: %w", businessID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT start_reading, end_reading FROM schedule_blocks
		WHERE business_id = ? ORDER BY position`, businessID)
	if err != nil {
		return s, fmt.Errorf("load schedule blocks %s: %w", businessID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return s, err
		}
		var b schedule.Block
		if b.Start, err = weekclock.Parse(start); err != nil {
			return s, fmt.Errorf("business %s: stored block start: %w", businessID, err)
		}
		if b.End, err = weekclock.Parse(end); err != nil {
			return s, fmt.Errorf("business %s: stored block end: %w", businessID, err)
		}
		s.Blocks = append(s.Blocks, b)
	}
	return s, rows.Err()
}

// ReplaceSchedule validates blocks and swaps the whole set in one
// transaction. Concurrent writers to the same business are last-writer-wins.
func (db *DB) ReplaceSchedule(ctx context.Context, businessID string, nonStop bool, blocks []schedule.Block) error {
	if err := schedule.Validate(blocks); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE businesses SET operates_non_stop = ?, updated_at = ? WHERE id = ?`,
		nonStop, dbTime(time.Now()), businessID)
	if err != nil {
		return fmt.Errorf("update business %s: %w", businessID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("business %s: %w", businessID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_blocks WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("clear schedule %s: %w", businessID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_blocks (business_id, position, start_reading, end_reading)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, b := range blocks {
		if _, err := stmt.ExecContext(ctx, businessID, i, int(b.Start), int(b.End)); err != nil {
			return fmt.Errorf("insert block %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule %s: %w", businessID, err)
	}

	db.logger.Info().
		Str("business_id", businessID).
		Bool("operates_non_stop", nonStop).
		Int("blocks", len(blocks)).
		Msg("Schedule replaced")
	return nil
}
