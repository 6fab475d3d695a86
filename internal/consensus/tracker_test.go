package consensus

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func (r *recorder) ofType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, ev := range r.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTracker() (*Tracker, *recorder, *clock.Fake) {
	rec := &recorder{}
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewTracker(DefaultConfig(), rec, clk), rec, clk
}

func votes(stances ...model.Action) []model.AgentVote {
	out := make([]model.AgentVote, 0, len(stances))
	for i, s := range stances {
		out = append(out, model.AgentVote{AgentID: string(rune('a' + i)), Stance: s, Confidence: 92})
	}
	return out
}

func TestCrossAboveGeneratesOneSignal(t *testing.T) {
	tr, rec, clk := newTracker()

	_, err := tr.UpdateConsensus("d1", "XYZ", model.ActionBuy, 80, nil, nil)
	require.NoError(t, err)
	st, err := tr.UpdateConsensus("d1", "XYZ", model.ActionBuy, 90, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 90.0, st.CurrentScore)
	assert.Equal(t, 80.0, st.PreviousScore)
	assert.Equal(t, model.TrendRising, st.Trend)
	assert.Equal(t, model.RecommendExecute, st.Recommendation)

	signals := tr.PendingSignals()
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.InDelta(t, 0.8333, sig.RecommendedSize, 0.001)
	assert.Equal(t, model.ActionBuy, sig.Action)
	assert.Equal(t, clk.Now().Add(5*time.Minute), sig.ValidUntil)
	// 没有投票，平均置信度为 0
	assert.Equal(t, model.UrgencyLow, sig.Urgency)

	assert.Len(t, rec.ofType(model.EventSignalGenerated), 1)
	assert.Len(t, rec.ofType(model.EventConsensusUpdate), 2)
	alerts := rec.ofType(model.EventThresholdAlert)
	require.Len(t, alerts, 1)
	a := alerts[0].(model.ThresholdAlert)
	assert.Equal(t, model.CrossedAbove, a.Condition)
	assert.Equal(t, model.SeveritySuccess, a.Severity)

	// 保持在阈值上方不再产生信号
	_, err = tr.UpdateConsensus("d1", "XYZ", model.ActionBuy, 95, nil, nil)
	require.NoError(t, err)
	assert.Len(t, tr.PendingSignals(), 1)
}

func TestCrossBelowAndApproaching(t *testing.T) {
	tr, rec, _ := newTracker()

	_, _ = tr.UpdateConsensus("d1", "ABC", model.ActionSell, 70, nil, nil)
	_, _ = tr.UpdateConsensus("d1", "ABC", model.ActionSell, 82, nil, nil) // approaching
	_, _ = tr.UpdateConsensus("d1", "ABC", model.ActionSell, 83, nil, nil) // 仍在区间内，不重复提示
	_, _ = tr.UpdateConsensus("d1", "ABC", model.ActionSell, 86, nil, nil) // crossed_above
	_, _ = tr.UpdateConsensus("d1", "ABC", model.ActionSell, 60, nil, nil) // crossed_below

	alerts := rec.ofType(model.EventThresholdAlert)
	require.Len(t, alerts, 3)
	assert.Equal(t, model.Approaching, alerts[0].(model.ThresholdAlert).Condition)
	assert.Equal(t, model.SeverityInfo, alerts[0].(model.ThresholdAlert).Severity)
	assert.Equal(t, model.CrossedAbove, alerts[1].(model.ThresholdAlert).Condition)
	assert.Equal(t, model.CrossedBelow, alerts[2].(model.ThresholdAlert).Condition)
	assert.Equal(t, model.SeverityWarning, alerts[2].(model.ThresholdAlert).Severity)
	assert.Len(t, rec.ofType(model.EventSignalGenerated), 1)
}

func TestSignalIffUpwardCrossing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr, _, _ := newTracker()

	prev, expected := 0.0, 0
	for i := 0; i < 500; i++ {
		score := float64(rng.Intn(101))
		if prev < 85 && score >= 85 {
			expected++
		}
		st, err := tr.UpdateConsensus("d", "S", model.ActionBuy, score, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, score, st.CurrentScore)
		assert.Equal(t, TrendOf(prev, score, 2), st.Trend)
		prev = score
	}
	assert.Len(t, tr.PendingSignals(), expected)
}

func TestConsumeSignalExactlyOnce(t *testing.T) {
	tr, _, _ := newTracker()
	_, _ = tr.UpdateConsensus("d1", "XYZ", model.ActionBuy, 90, nil, nil)
	id := tr.PendingSignals()[0].SignalID

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.ConsumeSignal(id); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := tr.ConsumeSignal(id)
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestHoldNeverSignals(t *testing.T) {
	tr, rec, _ := newTracker()
	_, _ = tr.UpdateConsensus("d1", "XYZ", model.ActionHold, 50, nil, nil)
	_, _ = tr.UpdateConsensus("d1", "XYZ", model.ActionHold, 99, nil, nil)

	assert.Empty(t, tr.PendingSignals())
	assert.Empty(t, rec.ofType(model.EventSignalGenerated))
	assert.Len(t, rec.ofType(model.EventThresholdAlert), 1)
}

func TestSignalConditionsAndUrgency(t *testing.T) {
	tr, _, _ := newTracker()
	factors := []model.Factor{
		{Name: "momentum", Weight: 0.4, Contribution: 0.45},
		{Name: "sentiment", Weight: 0.2, Contribution: 0.1},
	}
	var got model.ExecutionSignal
	tr.OnSignal(func(s model.ExecutionSignal) { got = s })

	_, err := tr.UpdateConsensus("d2", "ETH", model.ActionBuy, 96, factors,
		votes(model.ActionBuy, model.ActionBuy, model.ActionBuy, model.ActionBuy))
	require.NoError(t, err)

	assert.Equal(t, model.UrgencyHigh, got.Urgency)
	assert.Equal(t, 1.0, got.RecommendedSize)
	require.Len(t, got.Conditions, 4)
	assert.Contains(t, got.Conditions[0], "unanimous")
	assert.Contains(t, got.Conditions[1], "confidence")
	assert.Equal(t, "consensus trend rising", got.Conditions[2])
	assert.Contains(t, got.Conditions[3], "momentum")
}

func TestStrongMajority(t *testing.T) {
	st := &model.ConsensusState{
		Action: model.ActionSell,
		Trend:  model.TrendStable,
		Votes: votes(model.ActionSell, model.ActionSell, model.ActionSell, model.ActionSell,
			model.ActionBuy),
	}
	conds := Conditions(st, 80)
	require.Len(t, conds, 1)
	assert.Contains(t, conds[0], "strong majority")

	st.Votes = votes(model.ActionSell, model.ActionBuy, model.ActionHold)
	assert.Empty(t, Conditions(st, 80))
}

func TestRecommendedSizeAndUrgency(t *testing.T) {
	assert.Equal(t, 0.5, RecommendedSize(85, 85))
	assert.Equal(t, 0.5, RecommendedSize(80, 85))
	assert.InDelta(t, 0.8333, RecommendedSize(90, 85), 1e-4)
	assert.Equal(t, 1.0, RecommendedSize(100, 85))

	assert.Equal(t, model.UrgencyHigh, UrgencyOf(95, 90))
	assert.Equal(t, model.UrgencyLow, UrgencyOf(87.9, 99))
	assert.Equal(t, model.UrgencyLow, UrgencyOf(96, 74))
	assert.Equal(t, model.UrgencyMedium, UrgencyOf(90, 80))
	assert.Equal(t, 0.0, AverageConfidence(nil))
}

func TestInvalidInputs(t *testing.T) {
	tr, _, _ := newTracker()
	_, err := tr.UpdateConsensus("", "XYZ", model.ActionBuy, 50, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = tr.UpdateConsensus("d", "XYZ", model.Action("short"), 50, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAction)

	st, err := tr.UpdateConsensus("d", "XYZ", model.ActionBuy, 140, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.CurrentScore)
}

func TestClearDebateAndPurge(t *testing.T) {
	tr, rec, clk := newTracker()
	_, _ = tr.UpdateConsensus("d1", "AAA", model.ActionBuy, 90, nil, nil)
	_, _ = tr.UpdateConsensus("d1", "BBB", model.ActionBuy, 40, nil, nil)
	_, _ = tr.UpdateConsensus("d2", "AAA", model.ActionBuy, 40, nil, nil)

	assert.Equal(t, 2, tr.ClearDebate("d1"))
	assert.Equal(t, 0, tr.ClearDebate("d1"))
	_, ok := tr.State("d1", "AAA")
	assert.False(t, ok)
	assert.Len(t, tr.States(""), 1)

	cleared := rec.ofType(model.EventDebateCleared)
	require.Len(t, cleared, 1)
	assert.Equal(t, []string{"AAA", "BBB"}, cleared[0].(model.DebateCleared).Symbols)

	// 信号独立于状态存在，过期后被清理
	assert.Len(t, tr.PendingSignals(), 1)
	clk.Advance(6 * time.Minute)
	assert.Empty(t, tr.PendingSignals())
	assert.Equal(t, 1, tr.PurgeExpired(clk.Now()))
}
