package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
	txCount int
}

type memoryTx struct {
	records map[string]Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]Record)}
}

func key(propertyID, roomTypeID int64, date time.Time) string {
	return fmt.Sprintf("%d:%d:%s", propertyID, roomTypeID, date.Format(shared.DateLayout))
}

func (r *memoryRepo) put(rec Record) {
	rec.Date = shared.DateOnly(rec.Date)
	rec.Recompute()
	r.records[key(rec.PropertyID, rec.RoomTypeID, rec.Date)] = rec
}

func (r *memoryRepo) get(propertyID, roomTypeID int64, date time.Time) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[key(propertyID, roomTypeID, date)]
}

// WithTx works on a copy and only publishes it on success, like a rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	working := make(map[string]Record, len(r.records))
	for k, v := range r.records {
		working[k] = v
	}
	if err := fn(ctx, &memoryTx{records: working}); err != nil {
		return err
	}
	r.records = working
	return nil
}

func (r *memoryRepo) FindRange(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, d := range shared.DateRange(start, end) {
		if rec, ok := r.records[key(propertyID, roomTypeID, d)]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (tx *memoryTx) IncrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	k := key(propertyID, roomTypeID, date)
	rec, ok := tx.records[k]
	if !ok || rec.Closed || rec.StopSell || rec.Sold+qty > rec.Allotment+rec.OverbookingAllowed {
		return false, nil
	}
	rec.Sold += qty
	rec.Recompute()
	tx.records[k] = rec
	return true, nil
}

func (tx *memoryTx) DecrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	k := key(propertyID, roomTypeID, date)
	rec, ok := tx.records[k]
	if !ok {
		return false, nil
	}
	rec.Sold -= qty
	if rec.Sold < 0 {
		rec.Sold = 0
	}
	rec.Recompute()
	tx.records[k] = rec
	return true, nil
}

func (tx *memoryTx) Get(ctx context.Context, propertyID, roomTypeID int64, date time.Time) (Record, error) {
	rec, ok := tx.records[key(propertyID, roomTypeID, date)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (tx *memoryTx) UpsertRange(ctx context.Context, in BulkConfigInput) ([]Record, error) {
	var out []Record
	for _, d := range shared.DateRange(in.Start, in.End) {
		k := key(in.PropertyID, in.RoomTypeID, d)
		rec, ok := tx.records[k]
		if !ok {
			rec = Record{PropertyID: in.PropertyID, RoomTypeID: in.RoomTypeID, Date: d}
		}
		in.apply(&rec)
		tx.records[k] = rec
		out = append(out, rec)
	}
	return out, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(ctx context.Context, propertyID, roomTypeID int64) error {
	c.bumps++
	return nil
}

func day(s string) time.Time {
	t, err := time.Parse(shared.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestComputeAvailable(t *testing.T) {
	require.Equal(t, 2, ComputeAvailable(5, 3, 0))
	require.Equal(t, 0, ComputeAvailable(5, 5, 0))
	require.Equal(t, 1, ComputeAvailable(5, 5, 1))
	require.Equal(t, 0, ComputeAvailable(2, 7, 1))

	rec := Record{Allotment: 4, Sold: 1, OverbookingAllowed: 2, Available: 99}
	rec.Recompute()
	first := rec.Available
	rec.Recompute()
	require.Equal(t, 5, first)
	require.Equal(t, first, rec.Available)
}

func TestIsBookable(t *testing.T) {
	open := Record{Allotment: 2, Sold: 1}
	require.True(t, open.IsBookable(1))
	require.False(t, open.IsBookable(2))

	closed := Record{Allotment: 10, Closed: true}
	require.False(t, closed.IsBookable(1))
	require.Equal(t, ReasonClosed, closed.BlockReason(1))

	stop := Record{Allotment: 10, StopSell: true}
	require.Equal(t, ReasonStopSell, stop.BlockReason(1))

	// a stale Available value is ignored
	stale := Record{Allotment: 1, Sold: 1, Available: 5}
	require.Equal(t, ReasonNoAvailability, stale.BlockReason(1))
}

func TestCheckAvailabilityScenarioA(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 2, Date: day("2025-12-01"), Allotment: 5, Sold: 3})
	repo.put(Record{PropertyID: 1, RoomTypeID: 2, Date: day("2025-12-02"), Allotment: 5, Sold: 3})
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	verdict, err := svc.CheckAvailability(ctx, 1, 2, day("2025-12-01"), day("2025-12-02"), 2)
	require.NoError(t, err)
	require.True(t, verdict.Available)

	require.NoError(t, svc.IncrementSold(ctx, 1, 2, []time.Time{day("2025-12-01")}, 2))
	rec := repo.get(1, 2, day("2025-12-01"))
	require.Equal(t, 5, rec.Sold)
	require.Equal(t, 0, rec.Available)

	// Scenario B
	verdict, err = svc.CheckAvailability(ctx, 1, 2, day("2025-12-01"), day("2025-12-02"), 1)
	require.NoError(t, err)
	require.False(t, verdict.Available)
	require.Equal(t, ReasonNoAvailability, verdict.Reason)
	require.Equal(t, day("2025-12-01"), *verdict.Date)

	var unavailable *UnavailableError
	require.ErrorAs(t, verdict.Err(), &unavailable)
	require.ErrorIs(t, verdict.Err(), shared.ErrUnavailable)
}

func TestCheckAvailabilitySkipsCheckoutNight(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-06-10"), Allotment: 1})
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-06-11"), Allotment: 1, Closed: true})
	svc := NewService(repo, nil, nil, ServiceConfig{})

	verdict, err := svc.CheckAvailability(context.Background(), 1, 1, day("2025-06-10"), day("2025-06-11"), 1)
	require.NoError(t, err)
	require.True(t, verdict.Available)
}

func TestCheckAvailabilityReportsFirstBlockingNight(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-06-10"), Allotment: 3})
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-06-11"), Allotment: 3, StopSell: true})
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-06-12"), Allotment: 3, Closed: true})
	svc := NewService(repo, nil, nil, ServiceConfig{})

	verdict, err := svc.CheckAvailability(context.Background(), 1, 1, day("2025-06-10"), day("2025-06-13"), 1)
	require.NoError(t, err)
	require.False(t, verdict.Available)
	require.Equal(t, ReasonStopSell, verdict.Reason)
	require.Equal(t, day("2025-06-11"), *verdict.Date)
}

func TestCheckAvailabilityMissingNightIsUnavailable(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	verdict, err := svc.CheckAvailability(context.Background(), 9, 9, day("2025-01-01"), day("2025-01-03"), 1)
	require.NoError(t, err)
	require.False(t, verdict.Available)
	require.Equal(t, ReasonNoAvailability, verdict.Reason)
	require.Equal(t, day("2025-01-01"), *verdict.Date)
}

func TestCheckAvailabilityValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	ctx := context.Background()
	_, err := svc.CheckAvailability(ctx, 1, 1, day("2025-01-02"), day("2025-01-02"), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CheckAvailability(ctx, 1, 1, day("2025-01-01"), day("2025-01-02"), 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIncrementSoldIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-03-01"), Allotment: 2})
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-03-02"), Allotment: 0})
	svc := NewService(repo, nil, nil, ServiceConfig{})

	err := svc.IncrementSold(context.Background(), 1, 1, []time.Time{day("2025-03-01"), day("2025-03-02")}, 1)
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, day("2025-03-02"), unavailable.Date)
	require.Equal(t, ReasonNoAvailability, unavailable.Reason)
	require.Equal(t, 0, repo.get(1, 1, day("2025-03-01")).Sold)
}

func TestIncrementSoldReportsClosedReason(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-03-01"), Allotment: 2, Closed: true})
	svc := NewService(repo, nil, nil, ServiceConfig{})

	err := svc.IncrementSold(context.Background(), 1, 1, []time.Time{day("2025-03-01")}, 1)
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	require.Equal(t, ReasonClosed, unavailable.Reason)
}

func TestIncrementSoldHonoursOverbooking(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-03-01"), Allotment: 1, OverbookingAllowed: 1})
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()
	dates := []time.Time{day("2025-03-01")}

	require.NoError(t, svc.IncrementSold(ctx, 1, 1, dates, 1))
	require.NoError(t, svc.IncrementSold(ctx, 1, 1, dates, 1))
	require.ErrorIs(t, svc.IncrementSold(ctx, 1, 1, dates, 1), shared.ErrUnavailable)
	rec := repo.get(1, 1, day("2025-03-01"))
	require.Equal(t, 2, rec.Sold)
	require.Equal(t, 0, rec.Available)
}

func TestConcurrentIncrementNeverOversells(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-08-01"), Allotment: 1})
	svc := NewService(repo, nil, nil, ServiceConfig{})

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.IncrementSold(context.Background(), 1, 1, []time.Time{day("2025-08-01")}, 1)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
	require.Equal(t, 1, repo.get(1, 1, day("2025-08-01")).Sold)
}

func TestDecrementSoldFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-03-01"), Allotment: 3, Sold: 1})
	invalidator := &countingInvalidator{}
	svc := NewService(repo, nil, nil, ServiceConfig{Cache: invalidator})

	require.NoError(t, svc.DecrementSold(context.Background(), 1, 1, []time.Time{day("2025-03-01"), day("2025-03-09")}, 4))
	rec := repo.get(1, 1, day("2025-03-01"))
	require.Equal(t, 0, rec.Sold)
	require.Equal(t, 3, rec.Available)
	require.Equal(t, 1, invalidator.bumps)
}

func TestBatchValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	ctx := context.Background()
	require.ErrorIs(t, svc.IncrementSold(ctx, 1, 1, nil, 1), shared.ErrValidation)
	require.ErrorIs(t, svc.IncrementSold(ctx, 1, 1, []time.Time{day("2025-01-01")}, 0), shared.ErrValidation)
	require.ErrorIs(t, svc.DecrementSold(ctx, 0, 1, []time.Time{day("2025-01-01")}, 1), shared.ErrValidation)
}

func TestBulkConfigureCreatesAndPatches(t *testing.T) {
	repo := newMemoryRepo()
	repo.put(Record{PropertyID: 1, RoomTypeID: 1, Date: day("2025-05-02"), Allotment: 4, Sold: 3, StopSell: true})
	audit := &recordingAudit{err: errors.New("audit down")}
	invalidator := &countingInvalidator{}
	svc := NewService(repo, audit, nil, ServiceConfig{Cache: invalidator})

	n, err := svc.BulkConfigure(context.Background(), BulkConfigInput{
		OrganizationID: 7,
		ActorID:        3,
		PropertyID:     1,
		RoomTypeID:     1,
		Start:          day("2025-05-01"),
		End:            day("2025-05-03"),
		Allotment:      intPtr(5),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	created := repo.get(1, 1, day("2025-05-01"))
	require.Equal(t, 5, created.Allotment)
	require.Equal(t, 0, created.Sold)
	require.Equal(t, 5, created.Available)

	patched := repo.get(1, 1, day("2025-05-02"))
	require.Equal(t, 3, patched.Sold)
	require.True(t, patched.StopSell)
	require.Equal(t, 2, patched.Available)

	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditActionBulkWrite, audit.logs[0].Action)
	require.Equal(t, 1, invalidator.bumps)
}

func TestBulkConfigureValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02"), Allotment: intPtr(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2026-01-02"), Closed: boolPtr(true)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-05"), End: day("2025-01-02"), Closed: boolPtr(true)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02"), MinNights: intPtr(0)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02"), MaxNights: intPtr(0)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02"), MinNights: intPtr(4), MaxNights: intPtr(3)})
	require.ErrorIs(t, err, shared.ErrValidation)

	n, err := svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: day("2025-01-01"), End: day("2025-01-02"), MinNights: intPtr(1), MaxNights: intPtr(1)})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestFindRangeRejectsWideRange(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.FindRange(ctx, 1, 1, day("2025-01-01"), day("2026-01-02"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.FindRange(ctx, 1, 1, day("2025-01-01"), day("2026-01-01"))
	require.NoError(t, err)
}

func TestAvailableInvariantAfterMutations(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()
	dates := []time.Time{day("2025-09-01"), day("2025-09-02")}

	_, err := svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: dates[0], End: dates[1], Allotment: intPtr(3), OverbookingAllowed: intPtr(1)})
	require.NoError(t, err)
	require.NoError(t, svc.IncrementSold(ctx, 1, 1, dates, 2))
	require.NoError(t, svc.DecrementSold(ctx, 1, 1, dates[:1], 1))
	_, err = svc.BulkConfigure(ctx, BulkConfigInput{PropertyID: 1, RoomTypeID: 1, Start: dates[0], End: dates[1], Allotment: intPtr(1)})
	require.NoError(t, err)

	records, err := svc.FindRange(ctx, 1, 1, dates[0], dates[1])
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, ComputeAvailable(rec.Allotment, rec.Sold, rec.OverbookingAllowed), rec.Available)
	}
}
