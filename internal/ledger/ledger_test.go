package ledger

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/exchange"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Broadcast(ev model.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(t model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	ledger *Ledger
	events *recorder
	clock  *clock.Fake
	book   *exchange.PriceBook
}

func newFixture(t *testing.T, cfg Config, broker exchange.Broker, opts ...Option) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 4, 6, 9, 30, 0, 0, time.UTC))
	book := exchange.NewPriceBook(map[string]float64{"XYZ": 100, "ABC": 20})
	if broker == nil {
		broker = exchange.NewSimulatedBroker(exchange.SimConfig{PartialFillThreshold: 1000}, book, clk,
			rand.New(rand.NewSource(3)))
	}
	rec := &recorder{}
	l, err := New(cfg, rec, broker, book, clk, opts...)
	require.NoError(t, err)
	return &fixture{ledger: l, events: rec, clock: clk, book: book}
}

func buy(symbol string, qty float64) model.OrderRequest {
	return model.OrderRequest{UserID: "u1", Symbol: symbol, Side: model.Buy, Quantity: qty}
}

func sell(symbol string, qty float64) model.OrderRequest {
	return model.OrderRequest{UserID: "u1", Symbol: symbol, Side: model.Sell, Quantity: qty}
}

func TestQueueOrdering(t *testing.T) {
	q := newOrderQueue(10)
	for i, p := range []int{5, 9, 5, 1, 9} {
		q.push(&model.Order{ID: string(rune('a' + i)), Priority: p})
	}
	var got []string
	for {
		o, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, o.ID)
	}
	assert.Equal(t, []string{"b", "e", "a", "c", "d"}, got)
}

func TestQueueEvictsLowestPriority(t *testing.T) {
	f := newFixture(t, Config{MaxQueueSize: 3}, nil)
	l := f.ledger

	low, err := l.Enqueue(model.OrderRequest{UserID: "u1", Symbol: "XYZ", Side: model.Buy, Quantity: 1, Priority: 2})
	require.NoError(t, err)
	_, _ = l.Enqueue(model.OrderRequest{UserID: "u1", Symbol: "XYZ", Side: model.Buy, Quantity: 1, Priority: 7})
	_, _ = l.Enqueue(model.OrderRequest{UserID: "u1", Symbol: "XYZ", Side: model.Buy, Quantity: 1})
	newest, err := l.Enqueue(model.OrderRequest{UserID: "u1", Symbol: "XYZ", Side: model.Buy, Quantity: 1, Priority: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, l.QueueLen())
	evicted, err := l.Order(low.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, evicted.Status)
	assert.Contains(t, evicted.Error, "queue full")
	assert.Equal(t, 1, f.events.count(model.EventTradeFailed))

	queued := l.Queued()
	require.Len(t, queued, 3)
	assert.Equal(t, []int{7, 5, 3}, []int{queued[0].Priority, queued[1].Priority, queued[2].Priority})
	assert.Equal(t, newest.ID, queued[2].ID)
}

func TestFillCapsAndAveragePrice(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	l := f.ledger
	o, err := l.Enqueue(buy("XYZ", 10))
	require.NoError(t, err)

	l.mu.Lock()
	live := l.orders[o.ID]
	_ = l.queue.remove(o.ID)
	require.NoError(t, l.transition(live, model.OrderSubmitted))
	l.mu.Unlock()

	out := l.applyFill(live, &exchange.SubmitResult{Status: model.OrderPartial, FilledQuantity: 4, AvgFillPrice: 100})
	assert.Equal(t, model.OrderPartial, out.Status)
	out = l.applyFill(live, &exchange.SubmitResult{Status: model.OrderFilled, FilledQuantity: 20, AvgFillPrice: 110})
	assert.Equal(t, model.OrderFilled, out.Status)
	assert.Equal(t, 10.0, out.FilledQuantity)
	assert.InDelta(t, 106.0, out.AvgFillPrice, 1e-9)

	// 从成交明细重建均价
	var q, v float64
	for _, fl := range out.Fills {
		q += fl.Quantity
		v += fl.Quantity * fl.Price
	}
	assert.Equal(t, out.FilledQuantity, q)
	assert.InDelta(t, v/q, out.AvgFillPrice, 1e-9)

	// 终态后不再接受成交
	out = l.applyFill(live, &exchange.SubmitResult{Status: model.OrderFilled, FilledQuantity: 1, AvgFillPrice: 1})
	assert.Len(t, out.Fills, 2)
}

func TestPositionMath(t *testing.T) {
	now := time.Now()
	p := &model.Position{UserID: "u", Symbol: "XYZ"}

	applyToPosition(p, model.Buy, 10, 100, now)
	applyToPosition(p, model.Buy, 10, 110, now)
	assert.Equal(t, 20.0, p.Quantity)
	assert.InDelta(t, 105.0, p.AvgEntryPrice, 1e-9)
	assert.InDelta(t, p.Quantity*p.AvgEntryPrice, p.CostBasis, 1e-9)
	assert.Equal(t, model.PositionLong, p.Side)

	before := p.RealizedPnL
	res := applyToPosition(p, model.Sell, 5, 120, now)
	assert.InDelta(t, (120-105)*5.0, p.RealizedPnL-before, 1e-9)
	assert.Equal(t, 5.0, res.closedQty)
	assert.InDelta(t, 15*105.0, p.CostBasis, 1e-9)

	// 卖出超过持仓，翻转为空头
	res = applyToPosition(p, model.Sell, 20, 100, now)
	assert.InDelta(t, -75.0, res.realized, 1e-9)
	assert.Equal(t, -5.0, p.Quantity)
	assert.Equal(t, model.PositionShort, p.Side)
	assert.Equal(t, 100.0, p.AvgEntryPrice)
	assert.InDelta(t, -500.0, p.CostBasis, 1e-9)

	res = applyToPosition(p, model.Buy, 5, 90, now)
	assert.InDelta(t, 50.0, res.realized, 1e-9)
	assert.Equal(t, model.PositionFlat, p.Side)
	assert.Zero(t, p.CostBasis)
	assert.InDelta(t, 50.0, p.RealizedPnL, 1e-9)
}

func TestCostBasisInvariantUnderRandomFills(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := &model.Position{}
	for i := 0; i < 1000; i++ {
		side := model.Buy
		if rng.Intn(3) == 0 {
			side = model.Sell
		}
		qty := float64(rng.Intn(50) + 1)
		price := 50 + rng.Float64()*100

		prevAvg, prevQty, prevRealized := p.AvgEntryPrice, p.Quantity, p.RealizedPnL
		applyToPosition(p, side, qty, price, time.Time{})

		assert.InDelta(t, p.Quantity*p.AvgEntryPrice, p.CostBasis, 1e-6)
		assert.Equal(t, model.SideOf(p.Quantity), p.Side)
		if side == model.Sell && prevQty >= qty {
			assert.InDelta(t, (price-prevAvg)*qty, p.RealizedPnL-prevRealized, 1e-6)
		}
	}
}

func TestSubmitUpdatesPositionAndPortfolio(t *testing.T) {
	f := newFixture(t, Config{InitialCash: 10000}, nil)
	l := f.ledger

	o, err := l.Submit(context.Background(), buy("xyz", 10))
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, o.Status)
	assert.Equal(t, "XYZ", o.Symbol)

	pos, ok := l.Position("u1", "XYZ")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgEntryPrice)

	s := l.Portfolio("u1")
	assert.InDelta(t, 9000.0, s.Cash, 1e-9)
	assert.InDelta(t, 10000.0, s.TotalValue, 1e-9)
	assert.Equal(t, 1, s.Positions)

	f.book.SetPrice("XYZ", 110)
	o, err = l.Submit(context.Background(), sell("XYZ", 4))
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, o.Status)

	trades := l.Trades("u1")
	require.Len(t, trades, 2)
	assert.False(t, trades[0].Closing)
	assert.True(t, trades[1].Closing)
	assert.InDelta(t, 40.0, trades[1].RealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, trades[1].ReturnPct, 1e-9)

	s = l.Portfolio("u1")
	assert.InDelta(t, 40.0, s.RealizedPnL, 1e-9)
	assert.InDelta(t, 60.0, s.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 9440.0, s.Cash, 1e-9)

	assert.Equal(t, 2, f.events.count(model.EventTradeCompleted))
	assert.Equal(t, 2, f.events.count(model.EventPortfolioUpdate))
	assert.Zero(t, f.events.count(model.EventTradeFailed))
}

func TestBrokerRejectionMarksOrderRejected(t *testing.T) {
	broker := exchange.BrokerFunc(func(context.Context, *model.Order) (*exchange.SubmitResult, error) {
		return &exchange.SubmitResult{Status: model.OrderRejected, Error: "insufficient margin"}, nil
	})
	f := newFixture(t, Config{}, broker)

	o, err := f.ledger.Submit(context.Background(), buy("XYZ", 1))
	require.NoError(t, err)
	assert.Equal(t, model.OrderRejected, o.Status)
	assert.Equal(t, "insufficient margin", o.Error)
	assert.Equal(t, 1, f.events.count(model.EventTradeFailed))
	assert.Empty(t, f.ledger.Positions("u1"))
}

func TestBrokerErrorRejects(t *testing.T) {
	broker := exchange.BrokerFunc(func(context.Context, *model.Order) (*exchange.SubmitResult, error) {
		return nil, errors.New("timeout")
	})
	f := newFixture(t, Config{}, broker)
	o, err := f.ledger.Submit(context.Background(), buy("XYZ", 1))
	require.NoError(t, err)
	assert.Equal(t, model.OrderRejected, o.Status)
	assert.Equal(t, "timeout", o.Error)
}

func TestInvalidOrders(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	_, err := f.ledger.Enqueue(model.OrderRequest{Symbol: "XYZ", Side: model.Buy})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = f.ledger.Enqueue(model.OrderRequest{Symbol: "XYZ", Side: "hold", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = f.ledger.Enqueue(model.OrderRequest{Symbol: "XYZ", Side: model.Buy, Type: model.Limit, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	l := f.ledger
	o, err := l.Enqueue(buy("XYZ", 1))
	require.NoError(t, err)

	c, err := l.Cancel(o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, c.Status)
	assert.Equal(t, 0, l.QueueLen())
	assert.False(t, c.CompletedAt.IsZero())

	_, err = l.Cancel(o.ID)
	assert.ErrorIs(t, err, ErrOrderTerminal)
	_, err = l.Cancel("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.False(t, l.DrainOnce(context.Background()))
}

func TestCancelRefusedWhileBrokerPending(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	broker := exchange.BrokerFunc(func(_ context.Context, o *model.Order) (*exchange.SubmitResult, error) {
		close(entered)
		<-release
		return &exchange.SubmitResult{Status: model.OrderFilled, FilledQuantity: o.Quantity, AvgFillPrice: 100}, nil
	})
	f := newFixture(t, Config{}, broker)
	l := f.ledger

	o, err := l.Enqueue(buy("XYZ", 10))
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		l.DrainOnce(context.Background())
		close(done)
	}()
	<-entered

	_, err = l.Cancel(o.ID)
	assert.ErrorIs(t, err, ErrOrderInFlight)
	close(release)
	<-done

	got, err := l.Order(o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, got.Status)
	assert.Equal(t, 10.0, got.FilledQuantity)
	require.Len(t, l.Positions("u1"), 1)
	assert.Equal(t, 10.0, l.Positions("u1")[0].Quantity)
	assert.Len(t, l.Trades("u1"), 1)

	_, err = l.Cancel(o.ID)
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestModify(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	l := f.ledger
	a, _ := l.Enqueue(buy("XYZ", 1))
	b, _ := l.Enqueue(buy("XYZ", 1))

	qty, prio := 3.0, 9
	m, err := l.Modify(b.ID, model.OrderModify{Quantity: &qty, Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Quantity)
	assert.Equal(t, b.ID, l.Queued()[0].ID)

	require.True(t, l.DrainOnce(context.Background()))
	filled, _ := l.Order(b.ID)
	assert.Equal(t, model.OrderFilled, filled.Status)
	assert.Equal(t, 3.0, filled.FilledQuantity)

	_, err = l.Modify(b.ID, model.OrderModify{Quantity: &qty})
	assert.ErrorIs(t, err, ErrNotModifiable)

	neg := -1.0
	_, err = l.Modify(a.ID, model.OrderModify{Quantity: &neg})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestExpiredQueuedOrder(t *testing.T) {
	var calls int32
	broker := exchange.BrokerFunc(func(context.Context, *model.Order) (*exchange.SubmitResult, error) {
		atomic.AddInt32(&calls, 1)
		return &exchange.SubmitResult{Status: model.OrderFilled, FilledQuantity: 1, AvgFillPrice: 100}, nil
	})
	f := newFixture(t, Config{}, broker)
	req := buy("XYZ", 1)
	req.ExpiresAt = f.clock.Now().Add(time.Second)
	o, err := f.ledger.Enqueue(req)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	assert.False(t, f.ledger.DrainOnce(context.Background()))

	got, _ := f.ledger.Order(o.ID)
	assert.Equal(t, model.OrderExpired, got.Status)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunDrainsWithInterOrderDelay(t *testing.T) {
	f := newFixture(t, Config{InterOrderDelay: 100 * time.Millisecond}, nil)
	l := f.ledger
	ids := make([]string, 0, 3)
	for i, p := range []int{1, 9, 5} {
		req := buy("ABC", float64(i+1))
		req.Priority = p
		o, err := l.Enqueue(req)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.clock.Sleeps()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for _, d := range f.clock.Sleeps() {
		assert.Equal(t, 100*time.Millisecond, d)
	}
	trades := l.Trades("u1")
	require.Len(t, trades, 3)
	// 优先级 9, 5, 1
	assert.Equal(t, []string{ids[1], ids[2], ids[0]}, []string{trades[0].OrderID, trades[1].OrderID, trades[2].OrderID})
}

func TestShutdownCancelsQueued(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	o, _ := f.ledger.Enqueue(buy("XYZ", 1))
	f.ledger.Shutdown()

	got, _ := f.ledger.Order(o.ID)
	assert.Equal(t, model.OrderCancelled, got.Status)
	_, err := f.ledger.Enqueue(buy("XYZ", 1))
	assert.ErrorIs(t, err, ErrClosed)
}

type memStore struct {
	state   State
	records []model.TradeRecord
	saved   []model.Position
}

func (m *memStore) LoadState(context.Context) (*State, error) { return &m.state, nil }

func (m *memStore) AppendTradeRecord(_ context.Context, rec model.TradeRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) SavePosition(_ context.Context, pos model.Position) error {
	m.saved = append(m.saved, pos)
	return nil
}

type memSink struct{ snapshots []model.PortfolioSummary }

func (m *memSink) SavePortfolio(_ context.Context, s model.PortfolioSummary) error {
	m.snapshots = append(m.snapshots, s)
	return nil
}

func TestStoreRestoreAndPersist(t *testing.T) {
	store := &memStore{state: State{
		Positions: []model.Position{{UserID: "u1", Symbol: "XYZ", Quantity: 5, AvgEntryPrice: 80}},
		Trades: []model.TradeRecord{{ID: "t0", UserID: "u1", Symbol: "XYZ", Side: model.Buy,
			Quantity: 5, Price: 80, Notional: 400}},
	}}
	sink := &memSink{}
	f := newFixture(t, Config{InitialCash: 1000}, nil, WithStore(store), WithPortfolioSink(sink))
	require.NoError(t, f.ledger.Restore(context.Background()))

	pos, ok := f.ledger.Position("u1", "XYZ")
	require.True(t, ok)
	assert.Equal(t, 400.0, pos.CostBasis)
	assert.Equal(t, 100.0, pos.MarketPrice)
	assert.InDelta(t, 100.0, pos.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 600.0, f.ledger.Portfolio("u1").Cash, 1e-9)

	_, err := f.ledger.Submit(context.Background(), sell("XYZ", 5))
	require.NoError(t, err)
	require.Len(t, store.records, 1)
	assert.InDelta(t, 100.0, store.records[0].RealizedPnL, 1e-9)
	require.Len(t, store.saved, 1)
	assert.Equal(t, model.PositionFlat, store.saved[0].Side)
	require.Len(t, sink.snapshots, 1)
	assert.InDelta(t, 1100.0, sink.snapshots[0].TotalValue, 1e-9)
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(t, Config{MaxHistory: 3}, nil)
	for i := 0; i < 5; i++ {
		_, err := f.ledger.Submit(context.Background(), buy("XYZ", 1))
		require.NoError(t, err)
	}
	assert.Len(t, f.ledger.Orders("u1"), 3)
	assert.Len(t, f.ledger.Trades("u1"), 5)
	assert.False(t, math.IsNaN(f.ledger.Portfolio("u1").TotalValue))
}
