package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/hub"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

type fakeProducer struct {
	mu   sync.Mutex
	keys []string
	msgs []model.Envelope
	err  error
}

func (p *fakeProducer) Produce(_ context.Context, topic string, key []byte, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, string(key))
	p.msgs = append(p.msgs, msg.(model.Envelope))
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func TestRelayMirrorsHubEnvelopes(t *testing.T) {
	h := hub.New(hub.DefaultConfig(), clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	p := &fakeProducer{}
	r := New(p, "events", 16)
	h.Mirror(r.Enqueue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, h.Broadcast(model.DebateCleared{DebateID: "d1", Symbols: []string{"AAPL"}}))
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"debates"}, p.keys)
	assert.Equal(t, model.EventDebateCleared, p.msgs[0].Type)
	assert.EqualValues(t, 1, r.Sent())
}

func TestRelayDropsWhenFull(t *testing.T) {
	p := &fakeProducer{}
	r := New(p, "events", 2)
	for i := 0; i < 5; i++ {
		r.Enqueue(model.Envelope{Channel: model.ChannelTrades})
	}
	assert.EqualValues(t, 3, r.Dropped())

	// 未运行时已排队的消息在退出前写完
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	assert.Equal(t, 2, p.count())
}

func TestRelayProduceErrorIsNotCounted(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	r := New(p, "events", 1)
	r.Enqueue(model.Envelope{Channel: model.ChannelAlerts})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	assert.Zero(t, r.Sent())
}
