package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/venue"
)

// fakeVenue is a scriptable MarketVenue for lifecycle tests.
type fakeVenue struct {
	name string

	mu        sync.Mutex
	placeErr  error
	statuses  map[string]domain.OrderUpdate
	cancelled []string
	nextID    int
}

func newFakeVenue(name string) *fakeVenue {
	return &fakeVenue{name: name, statuses: make(map[string]domain.OrderUpdate)}
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch := make(chan domain.BookSnapshot)
	close(ch)
	return ch, nil
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, spec domain.OrderSpec) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.OrderAck{}, f.placeErr
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", f.name, f.nextID)
	f.statuses[id] = domain.OrderUpdate{VenueOrderID: id, Status: domain.OrderStatusOpen}
	return domain.OrderAck{VenueOrderID: id, Status: domain.OrderStatusOpen}, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, venueOrderID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, venueOrderID)
	return nil
}

func (f *fakeVenue) FetchOrderStatus(ctx context.Context, venueOrderID, symbol string) (domain.OrderUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	upd, ok := f.statuses[venueOrderID]
	if !ok {
		return domain.OrderUpdate{}, domain.ErrNotFound
	}
	return upd, nil
}

func (f *fakeVenue) setStatus(venueOrderID string, upd domain.OrderUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	upd.VenueOrderID = venueOrderID
	f.statuses[venueOrderID] = upd
}

func newTestManager(t *testing.T, fv *fakeVenue) (*Manager, *breaker.Breaker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	br := breaker.New(breaker.Config{
		FailureThreshold: 5,
		BackoffBase:      time.Second,
		BackoffMax:       time.Minute,
	}, logger)
	reg := venue.NewRegistry(br)
	require.NoError(t, reg.Register(fv))
	m := NewManager(reg, br, Config{
		OrderWait:    40 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, logger)
	return m, br
}

func spec(side domain.OrderSide) domain.OrderSpec {
	return domain.OrderSpec{
		Venue:         "alpha",
		Symbol:        "BTC-USD",
		Side:          side,
		Quantity:      decimal.NewFromFloat(2),
		LimitPrice:    decimal.NewFromFloat(100),
		CorrelationID: "corr-1",
	}
}

func TestSubmitTracksOrder(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "alpha-1", rec.VenueOrderID)
	assert.Equal(t, domain.OrderStatusOpen, rec.Status)
}

func TestSubmitPlacementFailureIsTerminal(t *testing.T) {
	fv := newFakeVenue("alpha")
	fv.placeErr = errors.New("rejected")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.Error(t, err)
	assert.Equal(t, domain.OrderStatusFailed, rec.Status)
}

func TestApplyIsMonotonicAndIdempotent(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)

	m.Apply("alpha", domain.OrderUpdate{
		VenueOrderID:   rec.VenueOrderID,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: decimal.NewFromFloat(2),
		AvgFillPrice:   decimal.NewFromFloat(100),
	})
	require.Equal(t, domain.OrderStatusFilled, m.Get(rec.ID).Status)

	// A late out-of-order event must not regress the terminal state.
	m.Apply("alpha", domain.OrderUpdate{
		VenueOrderID:   rec.VenueOrderID,
		Status:         domain.OrderStatusPartiallyFilled,
		FilledQuantity: decimal.NewFromFloat(1),
	})
	got := m.Get(rec.ID)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.True(t, got.FilledQuantity.Equal(decimal.NewFromFloat(2)))

	// A duplicate terminal event is a no-op (and must not double-close).
	m.Apply("alpha", domain.OrderUpdate{
		VenueOrderID:   rec.VenueOrderID,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: decimal.NewFromFloat(2),
	})
	assert.Equal(t, domain.OrderStatusFilled, m.Get(rec.ID).Status)
}

func TestAwaitReturnsOnFill(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideSell))
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.Apply("alpha", domain.OrderUpdate{
			VenueOrderID:   rec.VenueOrderID,
			Status:         domain.OrderStatusFilled,
			FilledQuantity: decimal.NewFromFloat(2),
			AvgFillPrice:   decimal.NewFromFloat(100.5),
		})
	}()

	final, err := m.Await(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, final.Status)
	assert.True(t, final.AvgFillPrice.Equal(decimal.NewFromFloat(100.5)))
}

func TestAwaitTimeoutCancelsAndFails(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)

	final, err := m.Await(context.Background(), rec.ID)
	assert.ErrorIs(t, err, domain.ErrOrderTimeout)
	assert.Equal(t, domain.OrderStatusFailed, final.Status)

	fv.mu.Lock()
	defer fv.mu.Unlock()
	assert.Contains(t, fv.cancelled, rec.VenueOrderID)
}

func TestPollAppliesVenueStatus(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	rec, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)

	fv.setStatus(rec.VenueOrderID, domain.OrderUpdate{
		Status:         domain.OrderStatusFilled,
		FilledQuantity: decimal.NewFromFloat(2),
		AvgFillPrice:   decimal.NewFromFloat(99.9),
	})
	m.pollOnce(context.Background())

	got := m.Get(rec.ID)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.True(t, got.FilledQuantity.Equal(decimal.NewFromFloat(2)))
}

func TestCancelOpenSkipsTerminalOrders(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	open, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)
	filled, err := m.Submit(context.Background(), spec(domain.OrderSideSell))
	require.NoError(t, err)

	m.Apply("alpha", domain.OrderUpdate{
		VenueOrderID:   filled.VenueOrderID,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: decimal.NewFromFloat(2),
	})

	n := m.CancelOpen(context.Background())
	assert.Equal(t, 1, n)

	fv.mu.Lock()
	defer fv.mu.Unlock()
	assert.Equal(t, []string{open.VenueOrderID}, fv.cancelled)
}

func TestCancelOpenLeavesCompensatingOrders(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	plain, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)

	unwindSpec := spec(domain.OrderSideSell)
	unwindSpec.Compensating = true
	unwind, err := m.Submit(context.Background(), unwindSpec)
	require.NoError(t, err)

	// Only the plain order is cancelled; the compensating order keeps
	// working so the position it closes is not abandoned.
	n := m.CancelOpen(context.Background())
	assert.Equal(t, 1, n)

	fv.mu.Lock()
	cancelled := append([]string(nil), fv.cancelled...)
	fv.mu.Unlock()
	assert.Equal(t, []string{plain.VenueOrderID}, cancelled)
	assert.Equal(t, domain.OrderStatusOpen, m.Get(unwind.ID).Status)
}

func TestCleanupEvictsOldTerminalRecords(t *testing.T) {
	fv := newFakeVenue("alpha")
	m, _ := newTestManager(t, fv)

	stale, err := m.Submit(context.Background(), spec(domain.OrderSideBuy))
	require.NoError(t, err)
	live, err := m.Submit(context.Background(), spec(domain.OrderSideSell))
	require.NoError(t, err)

	m.Apply("alpha", domain.OrderUpdate{
		VenueOrderID:   stale.VenueOrderID,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: decimal.NewFromFloat(2),
	})

	// Age the terminal record past the retention window.
	m.mu.Lock()
	m.records[stale.ID].rec.LastUpdated = time.Now().Add(-recordRetention - time.Minute)
	m.mu.Unlock()

	m.Cleanup()

	assert.Empty(t, m.Get(stale.ID).ID)
	assert.Equal(t, live.ID, m.Get(live.ID).ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.records, 1)
	assert.Len(t, m.byVenueID, 1)
}
