package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/consensus"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

type nopPublisher struct{}

func (nopPublisher) Broadcast(model.Event) error { return nil }

type chanConsumer struct {
	ch chan kafka.Message
}

func (c *chanConsumer) Consume(context.Context, string, string) (<-chan kafka.Message, error) {
	return c.ch, nil
}

func TestDecodeCoercesLooseTypes(t *testing.T) {
	req, err := Decode([]byte(`{"debate_id":42,"symbol":" aapl ","action":"BUY","score":"87.5",
		"votes":[{"agent_id":"a1","stance":"buy","confidence":80}]}`))
	require.NoError(t, err)
	assert.Equal(t, "42", req.DebateID)
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, model.ActionBuy, req.Action)
	assert.Equal(t, 87.5, req.Score)
	require.Len(t, req.Votes, 1)
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"debate_id":"d","symbol":"AAPL","action":"buy","score":"abc"}`,
		`{"debate_id":"d","symbol":"AAPL","action":"short","score":50}`,
		`{"debate_id":"d","symbol":"AAPL","action":"buy","score":150}`,
		`{"debate_id":"","symbol":"AAPL","action":"buy","score":50}`,
	} {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestRunFeedsTracker(t *testing.T) {
	tr := consensus.NewTracker(consensus.DefaultConfig(), nopPublisher{}, clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	c := &chanConsumer{ch: make(chan kafka.Message, 3)}
	c.ch <- kafka.Message{Value: []byte(`{"debate_id":"d1","symbol":"NVDA","action":"buy","score":80}`)}
	c.ch <- kafka.Message{Value: []byte(`garbage`)}
	c.ch <- kafka.Message{Value: []byte(`{"debate_id":"d1","symbol":"NVDA","action":"buy","score":90}`)}
	close(c.ch)

	require.NoError(t, New(c, tr, "consensus_votes", "g").Run(context.Background()))

	st, ok := tr.State("d1", "NVDA")
	require.True(t, ok)
	assert.Equal(t, 90.0, st.CurrentScore)
	assert.Len(t, tr.PendingSignals(), 1)
}
