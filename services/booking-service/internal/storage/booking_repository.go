package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/venuebook/libs/db"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

// BookingRepository is the Postgres store behind availability queries and booking transactions.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const activityColumns = `id::text, organization_id::text, name, duration_minutes, capacity,
	min_party_size, max_party_size, price_per_person_cents, currency, active, operating_config`

const reservationColumns = `id::text, organization_id::text, activity_id::text, customer_id::text,
	booking_date, start_minute, end_minute, party_size, status, payment_status, total_cents, currency,
	payment_ref, cancel_reason, created_at, updated_at, confirmed_at, cancelled_at`

func (r *BookingRepository) GetActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error) {
	return getActivity(ctx, r.pool, organizationID, activityID, "")
}

// SaveActivity inserts or replaces an activity owned by a.OrganizationID.
func (r *BookingRepository) SaveActivity(ctx context.Context, a model.Activity) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO activities
			(id, organization_id, name, duration_minutes, capacity, min_party_size, max_party_size,
			 price_per_person_cents, currency, active, operating_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			capacity = EXCLUDED.capacity,
			min_party_size = EXCLUDED.min_party_size,
			max_party_size = EXCLUDED.max_party_size,
			price_per_person_cents = EXCLUDED.price_per_person_cents,
			currency = EXCLUDED.currency,
			active = EXCLUDED.active,
			operating_config = EXCLUDED.operating_config,
			updated_at = now()
		WHERE activities.organization_id = EXCLUDED.organization_id
	`, a.ID, a.OrganizationID, a.Name, a.DurationMinutes, a.Capacity, a.MinPartySize, a.MaxPartySize,
		a.PricePerPersonCents, a.Currency, a.Active, cfg)
	if err != nil {
		if db.IsInvalidInput(err) {
			return fmt.Errorf("%w: activity id", model.ErrFormat)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		// The id belongs to another organization.
		return model.ErrActivityNotFound
	}
	return nil
}

func (r *BookingRepository) ListReservations(ctx context.Context, activityID string, date time.Time) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE activity_id = $1
			AND booking_date = $2
			AND status <> 'cancelled'
		ORDER BY start_minute ASC
	`, activityID, date)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *BookingRepository) SearchReservations(ctx context.Context, f booking.ListFilter) ([]model.Reservation, error) {
	where := []string{"organization_id = $1"}
	args := []any{f.OrganizationID}
	if f.ActivityID != "" {
		args = append(args, f.ActivityID)
		where = append(where, fmt.Sprintf("activity_id = $%d", len(args)))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date)
		where = append(where, fmt.Sprintf("booking_date = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, f.Limit)

	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY booking_date ASC, start_minute ASC, created_at ASC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		if db.IsInvalidInput(err) {
			return []model.Reservation{}, nil
		}
		return nil, err
	}
	return collectReservations(rows)
}

// InTx runs fn in one read-committed transaction; the activity row lock taken by
// LockActivity is what serializes concurrent bookings.
func (r *BookingRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx pgx.Tx
}

func (t *bookingTx) LockActivity(ctx context.Context, organizationID, activityID string) (model.Activity, error) {
	return getActivity(ctx, t.tx, organizationID, activityID, "FOR UPDATE")
}

func (t *bookingTx) BookedPartySize(ctx context.Context, activityID string, date time.Time, start, end int) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(party_size), 0)
		FROM reservations
		WHERE activity_id = $1
			AND booking_date = $2
			AND status <> 'cancelled'
			AND start_minute < $4
			AND end_minute > $3
	`, activityID, date, start, end).Scan(&total)
	return total, err
}

func (t *bookingTx) UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customers (id, organization_id, email, name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id::text, organization_id::text, email, name, phone, created_at
	`, c.ID, c.OrganizationID, c.Email, c.Name, c.Phone, c.CreatedAt).Scan(
		&c.ID, &c.OrganizationID, &c.Email, &c.Name, &c.Phone, &c.CreatedAt,
	)
	return c, err
}

func (t *bookingTx) InsertReservation(ctx context.Context, r model.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations
			(id, organization_id, activity_id, customer_id, booking_date, start_minute, end_minute,
			 party_size, status, payment_status, total_cents, currency, payment_ref, cancel_reason,
			 created_at, updated_at, confirmed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, r.ID, r.OrganizationID, r.ActivityID, r.CustomerID, r.Date, r.StartMinute, r.EndMinute,
		r.PartySize, string(r.Status), string(r.PaymentStatus), r.TotalCents, r.Currency, r.PaymentRef,
		r.CancelReason, r.CreatedAt, r.UpdatedAt, r.ConfirmedAt, r.CancelledAt)
	return err
}

func (t *bookingTx) GetReservationForUpdate(ctx context.Context, organizationID, reservationID string) (model.Reservation, error) {
	res, err := scanReservation(t.tx.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, reservationID, organizationID))
	if db.IsNoRows(err) || db.IsInvalidInput(err) {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	return res, err
}

func (t *bookingTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2,
			payment_status = $3,
			payment_ref = $4,
			cancel_reason = $5,
			updated_at = $6,
			confirmed_at = $7,
			cancelled_at = $8
		WHERE id = $1
	`, r.ID, string(r.Status), string(r.PaymentStatus), r.PaymentRef, r.CancelReason, r.UpdatedAt,
		r.ConfirmedAt, r.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update reservation %s: %d rows affected", r.ID, tag.RowsAffected())
	}
	return nil
}

func (t *bookingTx) RecordPaymentEvent(ctx context.Context, provider, eventID string) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payment_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDuplicateEvent
	}
	return nil
}

func (t *bookingTx) ExpirePending(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
			cancel_reason = 'expired',
			cancelled_at = now(),
			updated_at = now()
		WHERE id IN (
			SELECT id FROM reservations
			WHERE status = 'pending' AND created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+reservationColumns,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getActivity(ctx context.Context, q querier, organizationID, activityID, lock string) (model.Activity, error) {
	var (
		a   model.Activity
		cfg []byte
	)
	err := q.QueryRow(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE id = $1 AND organization_id = $2
		`+lock,
		activityID, organizationID).Scan(
		&a.ID, &a.OrganizationID, &a.Name, &a.DurationMinutes, &a.Capacity, &a.MinPartySize,
		&a.MaxPartySize, &a.PricePerPersonCents, &a.Currency, &a.Active, &cfg,
	)
	if err != nil {
		if db.IsNoRows(err) || db.IsInvalidInput(err) {
			return model.Activity{}, model.ErrActivityNotFound
		}
		return model.Activity{}, err
	}
	if err := json.Unmarshal(cfg, &a.Config); err != nil {
		return model.Activity{}, fmt.Errorf("%w: operating config of activity %s: %v", model.ErrFormat, a.ID, err)
	}
	return a, nil
}

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var (
		res           model.Reservation
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&res.ID,
		&res.OrganizationID,
		&res.ActivityID,
		&res.CustomerID,
		&res.Date,
		&res.StartMinute,
		&res.EndMinute,
		&res.PartySize,
		&status,
		&paymentStatus,
		&res.TotalCents,
		&res.Currency,
		&res.PaymentRef,
		&res.CancelReason,
		&res.CreatedAt,
		&res.UpdatedAt,
		&res.ConfirmedAt,
		&res.CancelledAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.Status(status)
	res.PaymentStatus = model.PaymentStatus(paymentStatus)
	res.Date = time.Date(res.Date.Year(), res.Date.Month(), res.Date.Day(), 0, 0, 0, 0, time.UTC)
	return res, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ booking.Store = (*BookingRepository)(nil)
