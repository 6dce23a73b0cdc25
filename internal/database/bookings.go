package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/models"
	"slotkeeper/internal/reminders"
)

const bookingColumns = `b.id, b.friendly_id, b.business_id, b.service_id,
	b.customer_name, b.customer_email, b.customer_phone, b.customer_telegram_chat_id,
	b.start_time, b.end_time, b.status, b.comment, b.reminders, b.created_at, b.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                  models.Booking
		email, phone, note sql.NullString
		policy             string
	)
	err := row.Scan(
		&b.ID, &b.FriendlyID, &b.BusinessID, &b.ServiceID,
		&b.Customer.Name, &email, &phone, &b.Customer.TelegramChatID,
		&b.Start, &b.End, &b.Status, &note, &policy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Customer.Email = email.String
	b.Customer.Phone = phone.String
	b.Comment = note.String
	if b.Reminders, err = decodePolicy(policy); err != nil {
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}
	return &b, nil
}

// CreateBooking inserts a booking with its reminder policy snapshot. A
// friendly id already used by the business yields ErrDuplicateFriendly.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	policy, err := encodePolicy(b.Reminders)
	if err != nil {
		return err
	}
	now := dbTime(time.Now())
	b.CreatedAt, b.UpdatedAt = now, now
	b.Start, b.End = dbTime(b.Start), dbTime(b.End)

	_, err = db.ExecContext(ctx, `
		INSERT INTO bookings (id, friendly_id, business_id, service_id,
			customer_name, customer_email, customer_phone, customer_telegram_chat_id,
			start_time, end_time, status, comment, reminders, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FriendlyID, b.BusinessID, b.ServiceID,
		b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Customer.TelegramChatID,
		b.Start, b.End, b.Status, b.Comment, policy, b.CreatedAt, b.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("booking %s friendly id %q: %w", b.ID, b.FriendlyID, ErrDuplicateFriendly)
	}
	if err != nil {
		return fmt.Errorf("create booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking returns a booking with its sent reminder record.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}

	sent, err := db.sentRecords(ctx, `WHERE booking_id = ?`, id)
	if err != nil {
		return nil, err
	}
	b.SentReminders = sent[id]
	if b.SentReminders == nil {
		b.SentReminders = reminders.SentRecord{}
	}
	return b, nil
}

// FriendlyIDExists reports whether the business already has a booking with
// the given friendly id.
func (db *DB) FriendlyIDExists(ctx context.Context, businessID, friendlyID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE business_id = ? AND friendly_id = ?`,
		businessID, friendlyID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check friendly id %q for business %s: %w", friendlyID, businessID, err)
	}
	return count > 0, nil
}

// UpdateBookingStatus moves a booking to status.
func (db *DB) UpdateBookingStatus(ctx context.Context, id, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("unknown booking status %q", status)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListOpenBookings returns approved bookings that end after now, shaped for
// the reminder scan.
func (db *DB) ListOpenBookings(ctx context.Context, now time.Time) ([]reminders.Booking, error) {
	cutoff := dbTime(now)
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`, bz.name, bz.timezone, s.name
		FROM bookings b
		JOIN businesses bz ON bz.id = b.business_id
		JOIN services s ON s.id = b.service_id
		WHERE b.status = ? AND b.end_time > ?
		ORDER BY b.start_time`,
		models.StatusApproved, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list open bookings: %w", err)
	}
	defer rows.Close()

	var out []reminders.Booking
	for rows.Next() {
		var businessName, timezone, serviceName string
		b, err := scanBooking(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &businessName, &timezone, &serviceName)...)
		}))
		if err != nil {
			return nil, err
		}

		loc, err := time.LoadLocation(timezone)
		if err != nil {
			db.logger.Warn().Err(err).Str("business_id", b.BusinessID).Msg("Unknown business timezone, using UTC")
			loc = time.UTC
		}

		out = append(out, reminders.Booking{
			ID:           b.ID,
			FriendlyID:   b.FriendlyID,
			BusinessID:   b.BusinessID,
			BusinessName: businessName,
			ServiceName:  serviceName,
			Start:        b.Start,
			End:          b.End,
			Location:     loc,
			Policy:       b.Reminders,
			Sent:         reminders.SentRecord{},
			Recipient: reminders.Recipient{
				Name:           b.Customer.Name,
				Email:          b.Customer.Email,
				TelegramChatID: b.Customer.TelegramChatID,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	sent, err := db.sentRecords(ctx, `
		WHERE booking_id IN (
			SELECT id FROM bookings WHERE status = ? AND end_time > ?
		)`, models.StatusApproved, cutoff)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if rec, ok := sent[out[i].ID]; ok {
			out[i].Sent = rec
		}
	}
	return out, nil
}

// AppendSentReminder records (lead, channel) for a booking. Recording the
// same pair again is a no-op.
func (db *DB) AppendSentReminder(ctx context.Context, bookingID string, lead int, ch reminders.Channel) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sent_reminders (booking_id, lead_minutes, channel, sent_at)
		VALUES (?, ?, ?, ?)`,
		bookingID, lead, string(ch), dbTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append sent reminder %s/%d/%s: %w", bookingID, lead, ch, err)
	}
	return nil
}

func (db *DB) sentRecords(ctx context.Context, where string, args ...any) (map[string]reminders.SentRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT booking_id, lead_minutes, channel FROM sent_reminders `+strings.TrimSpace(where)+`
		ORDER BY sent_at, rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("load sent reminders: %w", err)
	}
	defer rows.Close()

	out := make(map[string]reminders.SentRecord)
	for rows.Next() {
		var (
			id      string
			lead    int
			channel string
		)
		if err := rows.Scan(&id, &lead, &channel); err != nil {
			return nil, err
		}
		rec, ok := out[id]
		if !ok {
			rec = reminders.SentRecord{}
			out[id] = rec
		}
		rec.Merge(lead, reminders.Channel(channel))
	}
	return out, rows.Err()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
