// Package sqlitestore is the embedded single-node store used for local runs and database-backed tests.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Timestamps are stored as fixed-width UTC text so that string comparison orders them.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn (a file path or "file:" URI) and applies the schema.
// All work goes through one connection, so write transactions never interleave.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const activityColumns = `id, organization_id, name, duration_minutes, capacity, min_party_size,
	max_party_size, price_per_person_cents, currency, active, operating_config`

const reservationColumns = `id, organization_id, activity_id, customer_id, booking_date, start_minute,
	end_minute, party_size, status, payment_status, total_cents, currency, payment_ref, cancel_reason,
	created_at, updated_at, confirmed_at, cancelled_at`

func (s *Store) GetActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error) {
	return getActivity(ctx, s.db, organizationID, activityID)
}

func (s *Store) SaveActivity(ctx context.Context, a model.Activity) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activities
			(id, organization_id, name, duration_minutes, capacity, min_party_size, max_party_size,
			 price_per_person_cents, currency, active, operating_config, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			capacity = excluded.capacity,
			min_party_size = excluded.min_party_size,
			max_party_size = excluded.max_party_size,
			price_per_person_cents = excluded.price_per_person_cents,
			currency = excluded.currency,
			active = excluded.active,
			operating_config = excluded.operating_config,
			updated_at = excluded.updated_at
		WHERE activities.organization_id = excluded.organization_id
	`, a.ID, a.OrganizationID, a.Name, a.DurationMinutes, a.Capacity, a.MinPartySize, a.MaxPartySize,
		a.PricePerPersonCents, a.Currency, a.Active, string(cfg), formatTime(s.now()))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrActivityNotFound
	}
	return nil
}

func (s *Store) ListReservations(ctx context.Context, activityID string, date time.Time) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE activity_id = ? AND booking_date = ? AND status <> 'cancelled'
		ORDER BY start_minute ASC
	`, activityID, clock.FormatDate(date))
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (s *Store) SearchReservations(ctx context.Context, f booking.ListFilter) ([]model.Reservation, error) {
	where := []string{"organization_id = ?"}
	args := []any{f.OrganizationID}
	if f.ActivityID != "" {
		where = append(where, "activity_id = ?")
		args = append(args, f.ActivityID)
	}
	if !f.Date.IsZero() {
		where = append(where, "booking_date = ?")
		args = append(args, clock.FormatDate(f.Date))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY booking_date ASC, start_minute ASC, created_at ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &storeTx{tx: sqlTx, now: s.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type storeTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *storeTx) LockActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error) {
	return getActivity(ctx, t.tx, organizationID, activityID)
}

func (t *storeTx) BookedPartySize(ctx context.Context, activityID string, date time.Time, start, end int) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(party_size), 0)
		FROM reservations
		WHERE activity_id = ?
			AND booking_date = ?
			AND status <> 'cancelled'
			AND start_minute < ?
			AND end_minute > ?
	`, activityID, clock.FormatDate(date), end, start).Scan(&total)
	return total, err
}

func (t *storeTx) UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	var createdAt string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (id, organization_id, email, name, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, email) DO UPDATE SET email = excluded.email
		RETURNING id, organization_id, email, name, phone, created_at
	`, c.ID, c.OrganizationID, c.Email, c.Name, c.Phone, formatTime(c.CreatedAt)).Scan(
		&c.ID, &c.OrganizationID, &c.Email, &c.Name, &c.Phone, &createdAt,
	)
	if err != nil {
		return model.Customer{}, err
	}
	c.CreatedAt, err = parseTime(createdAt)
	return c, err
}

func (t *storeTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OrganizationID, r.ActivityID, r.CustomerID, clock.FormatDate(r.Date), r.StartMinute,
		r.EndMinute, r.PartySize, string(r.Status), string(r.PaymentStatus), r.TotalCents, r.Currency,
		r.PaymentRef, r.CancelReason, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		nullTime(r.ConfirmedAt), nullTime(r.CancelledAt))
	return err
}

func (t *storeTx) GetReservationForUpdate(ctx context.Context, organizationID, reservationID string) (model.Reservation, error) {
	res, err := scanReservation(t.tx.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = ? AND organization_id = ?
	`, reservationID, organizationID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	return res, err
}

func (t *storeTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, payment_status = ?, payment_ref = ?, cancel_reason = ?,
			updated_at = ?, confirmed_at = ?, cancelled_at = ?
		WHERE id = ?
	`, string(r.Status), string(r.PaymentStatus), r.PaymentRef, r.CancelReason, formatTime(r.UpdatedAt),
		nullTime(r.ConfirmedAt), nullTime(r.CancelledAt), r.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("update reservation %s: %d rows affected (%v)", r.ID, n, err)
	}
	return nil
}

func (t *storeTx) RecordPaymentEvent(ctx context.Context, provider, eventID string) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_events (provider, event_id, received_at)
		VALUES (?, ?, ?)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, formatTime(t.now()))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrDuplicateEvent
	}
	return nil
}

func (t *storeTx) ExpirePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error) {
	now := formatTime(t.now())
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE reservations
		SET status = 'cancelled', cancel_reason = 'expired', cancelled_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM reservations
			WHERE status = 'pending' AND created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
		RETURNING `+reservationColumns,
		now, now, formatTime(cutoff), limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getActivity(ctx context.Context, q rowQuerier, organizationID, activityID string) (model.Activity, error) {
	var (
		a   model.Activity
		cfg string
	)
	err := q.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE id = ? AND organization_id = ?
	`, activityID, organizationID).Scan(
		&a.ID, &a.OrganizationID, &a.Name, &a.DurationMinutes, &a.Capacity, &a.MinPartySize,
		&a.MaxPartySize, &a.PricePerPersonCents, &a.Currency, &a.Active, &cfg,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Activity{}, model.ErrActivityNotFound
		}
		return model.Activity{}, err
	}
	if err := json.Unmarshal([]byte(cfg), &a.Config); err != nil {
		return model.Activity{}, fmt.Errorf("%w: operating config of activity %s: %v", model.ErrFormat, a.ID, err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (model.Reservation, error) {
	var (
		res                      model.Reservation
		date, status, payment    string
		createdAt, updatedAt     string
		confirmedAt, cancelledAt sql.NullString
	)
	err := row.Scan(
		&res.ID, &res.OrganizationID, &res.ActivityID, &res.CustomerID, &date, &res.StartMinute,
		&res.EndMinute, &res.PartySize, &status, &payment, &res.TotalCents, &res.Currency,
		&res.PaymentRef, &res.CancelReason, &createdAt, &updatedAt, &confirmedAt, &cancelledAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.Status(status)
	res.PaymentStatus = model.PaymentStatus(payment)
	if res.Date, err = clock.ParseDate(date); err != nil {
		return model.Reservation{}, err
	}
	if res.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Reservation{}, err
	}
	if res.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Reservation{}, err
	}
	if res.ConfirmedAt, err = parseNullTime(confirmedAt); err != nil {
		return model.Reservation{}, err
	}
	if res.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ booking.Store = (*Store)(nil)
