package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

type fakeObserver struct {
	id     string
	mu     sync.Mutex
	ready  bool
	msgs   [][]byte
	closed int
}

func newObserver(id string) *fakeObserver {
	return &fakeObserver{id: id, ready: true}
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Send(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		return false
	}
	o.msgs = append(o.msgs, msg)
	return true
}

func (o *fakeObserver) Close() {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
}

func (o *fakeObserver) received() []map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]map[string]any, 0, len(o.msgs))
	for _, m := range o.msgs {
		var v map[string]any
		_ = json.Unmarshal(m, &v)
		out = append(out, v)
	}
	return out
}

func failed(symbol, reason string) model.TradeFailed {
	return model.TradeFailed{Symbol: symbol, Status: "rejected", Reason: reason}
}

func newHub() (*Hub, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	return New(Config{SweepInterval: 30 * time.Second, IdleTimeout: 60 * time.Second}, clk), clk
}

func TestPublishFanOut(t *testing.T) {
	h, _ := newHub()
	a, b, c := newObserver("a"), newObserver("b"), newObserver("c")
	for _, o := range []*fakeObserver{a, b, c} {
		require.NoError(t, h.Register(o))
	}
	require.NoError(t, h.Subscribe("a", model.ChannelTrades))
	require.NoError(t, h.Subscribe("b", model.ChannelTrades))
	require.NoError(t, h.Subscribe("c", model.ChannelAlerts))

	require.NoError(t, h.Publish(model.ChannelTrades, failed("BTC", "broker down")))

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
	assert.Empty(t, c.received())

	msg := a.received()[0]
	assert.Equal(t, "trades", msg["channel"])
	assert.Equal(t, "trade_failed", msg["type"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "BTC", data["symbol"])
	assert.Equal(t, "broker down", data["reason"])
}

func TestPublishOrderWithinChannel(t *testing.T) {
	h, _ := newHub()
	o := newObserver("a")
	require.NoError(t, h.Register(o))
	require.NoError(t, h.Subscribe("a", model.ChannelTrades))

	reasons := []string{"r1", "r2", "r3", "r4", "r5"}
	for _, r := range reasons {
		require.NoError(t, h.Publish(model.ChannelTrades, failed("ETH", r)))
	}
	got := o.received()
	require.Len(t, got, len(reasons))
	for i, r := range reasons {
		assert.Equal(t, r, got[i]["data"].(map[string]any)["reason"])
	}
}

func TestPublishEmptyChannelIsNoop(t *testing.T) {
	h, _ := newHub()
	assert.NoError(t, h.Publish(model.ChannelAlerts, failed("BTC", "x")))
}

func TestPublishSkipsNotReadyObserver(t *testing.T) {
	h, _ := newHub()
	slow, fast := newObserver("slow"), newObserver("fast")
	slow.ready = false
	require.NoError(t, h.Register(slow))
	require.NoError(t, h.Register(fast))
	require.NoError(t, h.Subscribe("slow", model.ChannelTrades))
	require.NoError(t, h.Subscribe("fast", model.ChannelTrades))

	require.NoError(t, h.Publish(model.ChannelTrades, failed("BTC", "x")))
	slow.ready = true
	require.NoError(t, h.Publish(model.ChannelTrades, failed("BTC", "y")))

	// 不排队、不重试
	assert.Len(t, slow.received(), 1)
	assert.Len(t, fast.received(), 2)
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	h, _ := newHub()

	err := h.Publish(model.ChannelTrades, model.TradeFailed{Symbol: "BTC", Status: "rejected"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	// 路由表不允许
	err = h.Publish(model.ChannelAgents, failed("BTC", "x"))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = h.Publish(model.Channel("news"), failed("BTC", "x"))
	assert.ErrorIs(t, err, ErrUnknownChannel)

	err = h.Publish(model.ChannelTrades, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	bad := model.ThresholdAlert{DebateID: "d", Symbol: "BTC", Condition: "sideways", Severity: model.SeverityInfo, Message: "m"}
	assert.ErrorIs(t, h.Publish(model.ChannelAlerts, bad), ErrInvalidEvent)
}

func TestBroadcastUsesRoutes(t *testing.T) {
	h, _ := newHub()
	trades, alerts, agents := newObserver("t"), newObserver("al"), newObserver("ag")
	for _, o := range []*fakeObserver{trades, alerts, agents} {
		require.NoError(t, h.Register(o))
	}
	require.NoError(t, h.Subscribe("t", model.ChannelTrades))
	require.NoError(t, h.Subscribe("al", model.ChannelAlerts))
	require.NoError(t, h.Subscribe("ag", model.ChannelAgents))

	require.NoError(t, h.Broadcast(failed("BTC", "x")))
	assert.Len(t, trades.received(), 1)
	assert.Len(t, alerts.received(), 1)
	assert.Empty(t, agents.received())
	assert.Equal(t, []model.Channel{model.ChannelTrades, model.ChannelAlerts}, Routes(model.EventTradeFailed))
}

func TestSubscribeIdempotent(t *testing.T) {
	h, _ := newHub()
	o := newObserver("a")
	require.NoError(t, h.Register(o))

	require.NoError(t, h.Subscribe("a", model.ChannelTrades))
	require.NoError(t, h.Subscribe("a", model.ChannelTrades))
	assert.Equal(t, 1, h.SubscriberCount(model.ChannelTrades))

	require.NoError(t, h.Publish(model.ChannelTrades, failed("BTC", "x")))
	assert.Len(t, o.received(), 1)

	require.NoError(t, h.Unsubscribe("a", model.ChannelTrades))
	require.NoError(t, h.Unsubscribe("a", model.ChannelTrades))
	assert.Equal(t, 0, h.SubscriberCount(model.ChannelTrades))

	assert.ErrorIs(t, h.Subscribe("ghost", model.ChannelTrades), ErrUnknownObserver)
	assert.ErrorIs(t, h.Subscribe("a", model.Channel("nope")), ErrUnknownChannel)
}

func TestSweepDisconnectsIdleObservers(t *testing.T) {
	h, clk := newHub()
	idle, active := newObserver("idle"), newObserver("active")
	require.NoError(t, h.Register(idle))
	require.NoError(t, h.Register(active))
	require.NoError(t, h.Subscribe("idle", model.ChannelTrades))
	require.NoError(t, h.Subscribe("active", model.ChannelTrades))

	clk.Advance(45 * time.Second)
	h.Touch("active")
	assert.Equal(t, 0, h.Sweep())

	clk.Advance(30 * time.Second)
	assert.Equal(t, 1, h.Sweep())

	assert.Equal(t, 1, idle.closed)
	assert.Equal(t, 0, active.closed)
	assert.Equal(t, 1, h.ObserverCount())
	assert.Equal(t, 1, h.SubscriberCount(model.ChannelTrades))
	assert.Nil(t, h.Subscriptions("idle"))
}

func TestRegisterReplacesSameID(t *testing.T) {
	h, _ := newHub()
	first, second := newObserver("dup"), newObserver("dup")
	require.NoError(t, h.Register(first))
	require.NoError(t, h.Subscribe("dup", model.ChannelTrades))
	require.NoError(t, h.Register(second))

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, h.SubscriberCount(model.ChannelTrades))
	assert.Equal(t, 1, h.ObserverCount())
}

func TestReleaseIgnoresReplacedObserver(t *testing.T) {
	h, _ := newHub()
	first, second := newObserver("dup"), newObserver("dup")
	require.NoError(t, h.Register(first))
	require.NoError(t, h.Register(second))
	require.NoError(t, h.Subscribe("dup", model.ChannelAlerts))

	// 旧连接退出不应影响新连接
	h.Release(first, "read error")
	assert.Equal(t, 1, h.ObserverCount())
	assert.Equal(t, 1, h.SubscriberCount(model.ChannelAlerts))

	h.Release(second, "client closed")
	assert.Zero(t, h.ObserverCount())
	assert.Zero(t, h.SubscriberCount(model.ChannelAlerts))
	assert.Equal(t, 1, second.closed)
}

func TestMirrorAndShutdown(t *testing.T) {
	h, _ := newHub()
	var mirrored []model.Envelope
	h.Mirror(func(env model.Envelope) { mirrored = append(mirrored, env) })

	o := newObserver("a")
	require.NoError(t, h.Register(o))
	require.NoError(t, h.Subscribe("a", model.ChannelTrades))
	require.NoError(t, h.Publish(model.ChannelTrades, failed("BTC", "x")))

	require.Len(t, mirrored, 1)
	assert.Equal(t, model.EventTradeFailed, mirrored[0].Type)

	h.Shutdown()
	assert.Equal(t, 1, o.closed)
	assert.ErrorIs(t, h.Publish(model.ChannelTrades, failed("BTC", "x")), ErrClosed)
	assert.ErrorIs(t, h.Register(newObserver("b")), ErrClosed)
}
