package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"slotkeeper/internal/models"
	"slotkeeper/internal/reminders"
)

// CreateService inserts a service with its reminder policy.
func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	if err := s.Reminders.Validate(); err != nil {
		return err
	}
	policy, err := encodePolicy(s.Reminders)
	if err != nil {
		return err
	}
	s.CreatedAt = dbTime(time.Now())

	_, err = db.ExecContext(ctx, `
		INSERT INTO services (id, business_id, name, duration, duration_unit, is_active, reminders, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.BusinessID, s.Name, s.Duration, string(s.DurationUnit), s.IsActive, policy, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create service %s: %w", s.ID, err)
	}
	return nil
}

// GetService returns the service or ErrNotFound.
func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	var unit, policy string
	err := db.QueryRowContext(ctx, `
		SELECT id, business_id, name, duration, duration_unit, is_active, reminders, created_at
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.BusinessID, &s.Name, &s.Duration, &unit, &s.IsActive, &policy, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	s.DurationUnit = models.DurationUnit(unit)
	if s.Reminders, err = decodePolicy(policy); err != nil {
		return nil, fmt.Errorf("service %s: %w", id, err)
	}
	return &s, nil
}

func encodePolicy(p reminders.Policy) (string, error) {
	if p == nil {
		p = reminders.Policy{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode reminder policy: %w", err)
	}
	return string(data), nil
}

func decodePolicy(s string) (reminders.Policy, error) {
	var p reminders.Policy
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode reminder policy: %w", err)
	}
	return p, nil
}
