package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/venuebook/services/booking-service/internal/model"
)

// memStore serializes transactions behind one mutex, which gives the same
// guarantee as the activity row lock in the real stores.
type memStore struct {
	mu           sync.Mutex
	activities   map[string]model.Activity
	reservations map[string]model.Reservation
	customers    map[string]model.Customer
	events       map[string]bool

	insertErr error
	txCount   int
}

func newMemStore(activities ...model.Activity) *memStore {
	m := &memStore{
		activities:   map[string]model.Activity{},
		reservations: map[string]model.Reservation{},
		customers:    map[string]model.Customer{},
		events:       map[string]bool{},
	}
	for _, a := range activities {
		m.activities[a.ID] = a
	}
	return m
}

func (m *memStore) GetActivity(_ context.Context, organizationID, activityID string) (model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[activityID]
	if !ok || a.OrganizationID != organizationID {
		return model.Activity{}, model.ErrActivityNotFound
	}
	return a, nil
}

func (m *memStore) ListReservations(_ context.Context, activityID string, date time.Time) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.reservations {
		if r.ActivityID == activityID && r.Date.Equal(date) && r.Status.CountsAgainstCapacity() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SearchReservations(_ context.Context, f ListFilter) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.reservations {
		if r.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ActivityID != "" && r.ActivityID != f.ActivityID {
			continue
		}
		if !f.Date.IsZero() && !r.Date.Equal(f.Date) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	tx := &memTx{
		store:        m,
		reservations: make(map[string]model.Reservation, len(m.reservations)),
		customers:    make(map[string]model.Customer, len(m.customers)),
		events:       make(map[string]bool, len(m.events)),
	}
	for k, v := range m.reservations {
		tx.reservations[k] = v
	}
	for k, v := range m.customers {
		tx.customers[k] = v
	}
	for k, v := range m.events {
		tx.events[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.reservations = tx.reservations
	m.customers = tx.customers
	m.events = tx.events
	return nil
}

func (m *memStore) reservation(id string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}

type memTx struct {
	store        *memStore
	reservations map[string]model.Reservation
	customers    map[string]model.Customer
	events       map[string]bool
}

func (t *memTx) LockActivity(_ context.Context, organizationID, activityID string) (model.Activity, error) {
	a, ok := t.store.activities[activityID]
	if !ok || a.OrganizationID != organizationID {
		return model.Activity{}, model.ErrActivityNotFound
	}
	return a, nil
}

func (t *memTx) BookedPartySize(_ context.Context, activityID string, date time.Time, start, end int) (int, error) {
	total := 0
	for _, r := range t.reservations {
		if r.ActivityID != activityID || !r.Date.Equal(date) || !r.Status.CountsAgainstCapacity() {
			continue
		}
		if r.StartMinute < end && start < r.EndMinute {
			total += r.PartySize
		}
	}
	return total, nil
}

func (t *memTx) UpsertCustomer(_ context.Context, c model.Customer) (model.Customer, error) {
	key := c.OrganizationID + "|" + c.Email
	if existing, ok := t.customers[key]; ok {
		return existing, nil
	}
	t.customers[key] = c
	return c, nil
}

func (t *memTx) InsertReservation(_ context.Context, r model.Reservation) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.reservations[r.ID] = r
	return nil
}

func (t *memTx) GetReservationForUpdate(_ context.Context, organizationID, reservationID string) (model.Reservation, error) {
	r, ok := t.reservations[reservationID]
	if !ok || r.OrganizationID != organizationID {
		return model.Reservation{}, model.ErrReservationNotFound
	}
	return r, nil
}

func (t *memTx) UpdateReservation(_ context.Context, r model.Reservation) error {
	if _, ok := t.reservations[r.ID]; !ok {
		return errors.New("update of unknown reservation")
	}
	t.reservations[r.ID] = r
	return nil
}

func (t *memTx) RecordPaymentEvent(_ context.Context, provider, eventID string) error {
	key := provider + "|" + eventID
	if t.events[key] {
		return model.ErrDuplicateEvent
	}
	t.events[key] = true
	return nil
}

func (t *memTx) ExpirePending(_ context.Context, cutoff time.Time, limit int) ([]model.Reservation, error) {
	var out []model.Reservation
	for id, r := range t.reservations {
		if len(out) == limit {
			break
		}
		if r.Status != model.StatusPending || !r.CreatedAt.Before(cutoff) {
			continue
		}
		now := cutoff
		r.Status = model.StatusCancelled
		r.CancelReason = "expired"
		r.CancelledAt = &now
		t.reservations[id] = r
		out = append(out, r)
	}
	return out, nil
}
