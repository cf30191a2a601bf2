package reservations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/catalog"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/shared"
)

// memoryDB holds reservations and the inventory ledger behind one lock so a
// transaction sees and commits both together.
type memoryDB struct {
	mu           sync.Mutex
	reservations map[int64]Reservation
	inventory    map[string]inventory.Record
	nextID       int64
}

type memoryState struct {
	reservations map[int64]Reservation
	inventory    map[string]inventory.Record
	nextID       int64
}

func newMemoryDB() *memoryDB {
	return &memoryDB{reservations: map[int64]Reservation{}, inventory: map[string]inventory.Record{}}
}

func invKey(propertyID, roomTypeID int64, date time.Time) string {
	return fmt.Sprintf("%d:%d:%s", propertyID, roomTypeID, shared.DateOnly(date).Format(shared.DateLayout))
}

func (db *memoryDB) seedNight(propertyID, roomTypeID int64, date time.Time, allotment, sold, overbooking int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec := inventory.Record{PropertyID: propertyID, RoomTypeID: roomTypeID, Date: shared.DateOnly(date), Allotment: allotment, Sold: sold, OverbookingAllowed: overbooking}
	rec.Recompute()
	db.inventory[invKey(propertyID, roomTypeID, date)] = rec
}

func (db *memoryDB) setNight(propertyID, roomTypeID int64, date time.Time, mutate func(*inventory.Record)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := invKey(propertyID, roomTypeID, date)
	rec := db.inventory[k]
	mutate(&rec)
	rec.Recompute()
	db.inventory[k] = rec
}

func (db *memoryDB) night(propertyID, roomTypeID int64, date time.Time) inventory.Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.inventory[invKey(propertyID, roomTypeID, date)]
}

func (db *memoryDB) seedReservation(res Reservation) Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	res.ID = db.nextID
	if res.BookingReference == "" {
		res.BookingReference = fmt.Sprintf("BK-SEED%05d", res.ID)
	}
	db.reservations[res.ID] = res
	return res
}

func (db *memoryDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.reservations)
}

func (db *memoryDB) snapshot() *memoryState {
	st := &memoryState{reservations: make(map[int64]Reservation, len(db.reservations)), inventory: make(map[string]inventory.Record, len(db.inventory)), nextID: db.nextID}
	for k, v := range db.reservations {
		st.reservations[k] = v
	}
	for k, v := range db.inventory {
		st.inventory[k] = v
	}
	return st
}

func (db *memoryDB) publish(st *memoryState) {
	db.reservations, db.inventory, db.nextID = st.reservations, st.inventory, st.nextID
}

// WithTx serialises transactions and discards the working copy on error.
func (db *memoryDB) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	st := db.snapshot()
	if err := fn(ctx, &memoryTx{st: st}); err != nil {
		return err
	}
	db.publish(st)
	return nil
}

func (db *memoryDB) Get(ctx context.Context, id int64) (Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, ok := db.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return res, nil
}

func (db *memoryDB) GetByReference(ctx context.Context, ref string) (Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, res := range db.reservations {
		if res.BookingReference == ref {
			return res, nil
		}
	}
	return Reservation{}, ErrNotFound
}

func (db *memoryDB) List(ctx context.Context, filter ListFilter) ([]Reservation, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var matched []Reservation
	for _, res := range db.reservations {
		if res.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.PropertyID > 0 && res.PropertyID != filter.PropertyID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		if filter.GuestName != "" && !strings.Contains(strings.ToLower(res.Guest.FullName()), strings.ToLower(filter.GuestName)) {
			continue
		}
		matched = append(matched, res)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	offset := shared.Offset(filter.Page, filter.Limit)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], len(matched), nil
}

// inventoryView adapts the ledger part of memoryDB to inventory.RepositoryPort.
type inventoryView struct {
	db *memoryDB
}

func (v inventoryView) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	st := v.db.snapshot()
	if err := fn(ctx, &memoryLedger{st: st}); err != nil {
		return err
	}
	v.db.publish(st)
	return nil
}

func (v inventoryView) FindRange(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time) ([]inventory.Record, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()
	var out []inventory.Record
	for _, rec := range v.db.inventory {
		if rec.PropertyID != propertyID || rec.RoomTypeID != roomTypeID || rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type memoryTx struct {
	st *memoryState
}

func (tx *memoryTx) Insert(ctx context.Context, res *Reservation) error {
	if res.BookingReference == "" {
		res.BookingReference = NewBookingReference()
	}
	tx.st.nextID++
	res.ID = tx.st.nextID
	res.CreatedAt = time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)
	res.UpdatedAt = res.CreatedAt
	tx.st.reservations[res.ID] = *res
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Reservation, error) {
	res, ok := tx.st.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return res, nil
}

func (tx *memoryTx) Update(ctx context.Context, res Reservation) error {
	if _, ok := tx.st.reservations[res.ID]; !ok {
		return ErrNotFound
	}
	tx.st.reservations[res.ID] = res
	return nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository {
	return &memoryLedger{st: tx.st}
}

type memoryLedger struct {
	st *memoryState
}

func (l *memoryLedger) IncrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	k := invKey(propertyID, roomTypeID, date)
	rec, ok := l.st.inventory[k]
	if !ok || rec.Closed || rec.StopSell || rec.Sold+qty > rec.Allotment+rec.OverbookingAllowed {
		return false, nil
	}
	rec.Sold += qty
	rec.Recompute()
	l.st.inventory[k] = rec
	return true, nil
}

func (l *memoryLedger) DecrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	k := invKey(propertyID, roomTypeID, date)
	rec, ok := l.st.inventory[k]
	if !ok {
		return false, nil
	}
	rec.Sold -= qty
	if rec.Sold < 0 {
		rec.Sold = 0
	}
	rec.Recompute()
	l.st.inventory[k] = rec
	return true, nil
}

func (l *memoryLedger) Get(ctx context.Context, propertyID, roomTypeID int64, date time.Time) (inventory.Record, error) {
	rec, ok := l.st.inventory[invKey(propertyID, roomTypeID, date)]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (l *memoryLedger) UpsertRange(ctx context.Context, input inventory.BulkConfigInput) ([]inventory.Record, error) {
	return nil, errors.New("not used by reservations")
}

// priceBook is a read-only pricing.RepositoryPort.
type priceBook struct {
	records []pricing.Record
}

func (p *priceBook) add(propertyID, roomTypeID, ratePlanID int64, date time.Time, amount string, currency pricing.Currency) {
	p.records = append(p.records, pricing.Record{PropertyID: propertyID, RoomTypeID: roomTypeID, RatePlanID: ratePlanID,
		Date: shared.DateOnly(date), Amount: decimal.RequireFromString(amount), Currency: currency, IsAvailable: true})
}

func (p *priceBook) FindRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) ([]pricing.Record, error) {
	var out []pricing.Record
	for _, rec := range p.records {
		if rec.PropertyID == propertyID && rec.RoomTypeID == roomTypeID && rec.RatePlanID == ratePlanID && !rec.Date.Before(start) && rec.Date.Before(end) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (p *priceBook) UpsertDates(ctx context.Context, in pricing.BulkUpsertInput, dates []time.Time) (int, error) {
	return 0, errors.New("read only")
}

func (p *priceBook) SoftDelete(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) (int, error) {
	return 0, errors.New("read only")
}

// catalogBook serves one organization's property 1 with room type 10 and rate plan 100.
type catalogBook struct{}

func (catalogBook) GetProperty(ctx context.Context, id int64) (catalog.Property, error) {
	if id != 1 {
		return catalog.Property{}, catalog.ErrNotFound
	}
	return catalog.Property{ID: 1, OrganizationID: 1, Code: "SEA", Name: "Seaside", Status: shared.LifecycleActive}, nil
}

func (catalogBook) GetRoomType(ctx context.Context, id int64) (catalog.RoomType, error) {
	if id != 10 {
		return catalog.RoomType{}, catalog.ErrNotFound
	}
	return catalog.RoomType{ID: 10, PropertyID: 1, Code: "DBL", Name: "Double", IsBookable: true, Status: shared.LifecycleActive}, nil
}

func (catalogBook) GetRatePlan(ctx context.Context, id int64) (catalog.RatePlan, error) {
	if id != 100 {
		return catalog.RatePlan{}, catalog.ErrNotFound
	}
	return catalog.RatePlan{ID: 100, PropertyID: 1, Code: "BAR", Name: "Best available", Status: shared.LifecycleActive}, nil
}

// agencyLedger is an AgencyPort recording stat deltas.
type agencyLedger struct {
	mu       sync.Mutex
	rate     decimal.Decimal
	active   bool
	recorded []agencies.StatsDelta
	reversed []agencies.StatsDelta
}

func (a *agencyLedger) ResolveCommission(ctx context.Context, orgID, agencyID, propertyID int64) (decimal.Decimal, error) {
	if !a.active {
		return decimal.Zero, fmt.Errorf("%w: agency %d is not active", shared.ErrValidation, agencyID)
	}
	return a.rate, pricing.ValidateCommissionRate(a.rate)
}

func (a *agencyLedger) RecordBooking(ctx context.Context, delta agencies.StatsDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorded = append(a.recorded, delta)
}

func (a *agencyLedger) ReverseBooking(ctx context.Context, delta agencies.StatsDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reversed = append(a.reversed, delta.Negate())
}

// totals sums every recorded and reversed delta.
func (a *agencyLedger) totals() agencies.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := agencies.Stats{TotalRevenue: decimal.Zero, TotalCommission: decimal.Zero}
	for _, d := range append(append([]agencies.StatsDelta{}, a.recorded...), a.reversed...) {
		stats.TotalBookings += d.Bookings
		stats.TotalRevenue = stats.TotalRevenue.Add(d.Revenue)
		stats.TotalCommission = stats.TotalCommission.Add(d.Commission)
	}
	return stats
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomeCounter) ObserveReservation(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome]++
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) EnqueueReservationConfirmation(ctx context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return nil
}
