package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
	"tradeflow/pkg/logger"
)

var (
	ErrInvalidKey     = errors.New("consensus: debate id and symbol are required")
	ErrInvalidAction  = errors.New("consensus: invalid action")
	ErrSignalNotFound = errors.New("consensus: signal not found")
)

// Publisher 事件出口，由 hub 实现
type Publisher interface {
	Broadcast(ev model.Event) error
}

type Config struct {
	Threshold        float64       // 执行阈值
	CautionThreshold float64       // 谨慎阈值
	ApproachMargin   float64       // 接近阈值的提示区间
	TrendDeadband    float64       // 分数变化超过该值才算 rising/falling
	SignalTTL        time.Duration // 信号有效期
	PurgeInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:        85,
		CautionThreshold: 70,
		ApproachMargin:   5,
		TrendDeadband:    2,
		SignalTTL:        5 * time.Minute,
		PurgeInterval:    time.Minute,
	}
}

// Tracker 维护每个 (debate, symbol) 的共识状态，并在向上突破阈值时产出执行信号
type Tracker struct {
	cfg   Config
	pub   Publisher
	clock clock.Clock

	mu      sync.RWMutex
	states  map[string]*model.ConsensusState
	signals map[string]*model.ExecutionSignal
	hooks   []func(model.ExecutionSignal)
}

func NewTracker(cfg Config, pub Publisher, clk clock.Clock) *Tracker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.CautionThreshold <= 0 {
		cfg.CautionThreshold = def.CautionThreshold
	}
	if cfg.ApproachMargin <= 0 {
		cfg.ApproachMargin = def.ApproachMargin
	}
	if cfg.TrendDeadband <= 0 {
		cfg.TrendDeadband = def.TrendDeadband
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = def.SignalTTL
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = def.PurgeInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		cfg:     cfg,
		pub:     pub,
		clock:   clk,
		states:  make(map[string]*model.ConsensusState),
		signals: make(map[string]*model.ExecutionSignal),
	}
}

func (t *Tracker) Config() Config { return t.cfg }

func stateKey(debateID, symbol string) string {
	return debateID + ":" + symbol
}

// OnSignal 注册信号回调（自动执行等），回调在锁外调用
func (t *Tracker) OnSignal(fn func(model.ExecutionSignal)) {
	t.mu.Lock()
	t.hooks = append(t.hooks, fn)
	t.mu.Unlock()
}

// UpdateConsensus 写入最新分数并发布更新、阈值告警与执行信号
func (t *Tracker) UpdateConsensus(debateID, symbol string, action model.Action, score float64,
	factors []model.Factor, votes []model.AgentVote) (*model.ConsensusState, error) {
	if debateID == "" || symbol == "" {
		return nil, ErrInvalidKey
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if score < 0 || score > 100 {
		logger.Warn("consensus score out of range, clamped",
			logger.Pair("debate", debateID),
			logger.Pair("symbol", symbol),
			logger.Pair("score", score))
		score = clamp(score, 0, 100)
	}

	now := t.clock.Now()
	key := stateKey(debateID, symbol)

	t.mu.Lock()
	prev := 0.0
	if old, ok := t.states[key]; ok {
		prev = old.CurrentScore
	}
	st := &model.ConsensusState{
		DebateID:       debateID,
		Symbol:         symbol,
		Action:         action,
		CurrentScore:   score,
		PreviousScore:  prev,
		Threshold:      t.cfg.Threshold,
		Trend:          TrendOf(prev, score, t.cfg.TrendDeadband),
		Recommendation: t.recommend(score),
		Factors:        append([]model.Factor(nil), factors...),
		Votes:          append([]model.AgentVote(nil), votes...),
		UpdatedAt:      now,
	}
	t.states[key] = st
	snapshot := *st

	var sig *model.ExecutionSignal
	cond, crossed := t.condition(prev, score)
	if crossed && cond == model.CrossedAbove {
		sig = t.newSignal(&snapshot, now)
		if sig != nil {
			t.signals[sig.SignalID] = sig
		}
	}
	hooks := t.hooks
	t.mu.Unlock()

	t.publish(model.ConsensusUpdate{
		DebateID:       debateID,
		Symbol:         symbol,
		Action:         action,
		Score:          score,
		PreviousScore:  prev,
		Threshold:      t.cfg.Threshold,
		Trend:          snapshot.Trend,
		Recommendation: snapshot.Recommendation,
		Factors:        snapshot.Factors,
	})
	if len(votes) > 0 {
		t.publish(model.AgentVotes{DebateID: debateID, Symbol: symbol, Votes: snapshot.Votes})
	}
	if crossed {
		t.publish(t.alert(&snapshot, cond))
	}
	if sig != nil {
		logger.Info("execution signal generated",
			logger.Pair("signal", sig.SignalID),
			logger.Pair("symbol", symbol),
			logger.Pair("score", score),
			logger.Pair("size", sig.RecommendedSize),
			logger.Pair("urgency", sig.Urgency))
		t.publish(model.SignalGenerated{Signal: *sig})
		for _, fn := range hooks {
			fn(*sig)
		}
	}
	return &snapshot, nil
}

// TrendOf 趋势只由前后两个分数决定
func TrendOf(prev, cur, deadband float64) model.Trend {
	delta := cur - prev
	switch {
	case delta > deadband:
		return model.TrendRising
	case delta < -deadband:
		return model.TrendFalling
	default:
		return model.TrendStable
	}
}

func (t *Tracker) recommend(score float64) model.Recommendation {
	switch {
	case score >= t.cfg.Threshold:
		return model.RecommendExecute
	case score >= t.cfg.CautionThreshold:
		return model.RecommendCaution
	default:
		return model.RecommendReject
	}
}

// Recommendation 仅用于展示
func (t *Tracker) Recommendation(score float64) model.Recommendation {
	return t.recommend(score)
}

// 三种条件互斥
func (t *Tracker) condition(prev, cur float64) (model.AlertCondition, bool) {
	thr := t.cfg.Threshold
	approach := thr - t.cfg.ApproachMargin
	switch {
	case prev < thr && cur >= thr:
		return model.CrossedAbove, true
	case prev >= thr && cur < thr:
		return model.CrossedBelow, true
	case cur >= approach && cur < thr && prev < approach:
		return model.Approaching, true
	}
	return "", false
}

func (t *Tracker) alert(st *model.ConsensusState, cond model.AlertCondition) model.ThresholdAlert {
	a := model.ThresholdAlert{
		DebateID:      st.DebateID,
		Symbol:        st.Symbol,
		Condition:     cond,
		Score:         st.CurrentScore,
		PreviousScore: st.PreviousScore,
		Threshold:     st.Threshold,
	}
	switch cond {
	case model.CrossedAbove:
		a.Severity = model.SeveritySuccess
		a.Message = fmt.Sprintf("%s consensus %.1f reached execute threshold %.0f", st.Symbol, st.CurrentScore, st.Threshold)
	case model.CrossedBelow:
		a.Severity = model.SeverityWarning
		a.Message = fmt.Sprintf("%s consensus dropped to %.1f below threshold %.0f", st.Symbol, st.CurrentScore, st.Threshold)
	default:
		a.Severity = model.SeverityInfo
		a.Message = fmt.Sprintf("%s consensus %.1f approaching threshold %.0f", st.Symbol, st.CurrentScore, st.Threshold)
	}
	return a
}

// hold 不产生可执行信号
func (t *Tracker) newSignal(st *model.ConsensusState, now time.Time) *model.ExecutionSignal {
	if st.Action == model.ActionHold {
		logger.Info("hold consensus crossed threshold, no signal",
			logger.Pair("debate", st.DebateID),
			logger.Pair("symbol", st.Symbol))
		return nil
	}
	avgConf := AverageConfidence(st.Votes)
	return &model.ExecutionSignal{
		SignalID:        uuid.NewString(),
		DebateID:        st.DebateID,
		Symbol:          st.Symbol,
		Action:          st.Action,
		ConsensusScore:  st.CurrentScore,
		Threshold:       st.Threshold,
		RecommendedSize: RecommendedSize(st.CurrentScore, st.Threshold),
		Urgency:         UrgencyOf(st.CurrentScore, avgConf),
		CreatedAt:       now,
		ValidUntil:      now.Add(t.cfg.SignalTTL),
		Conditions:      Conditions(st, avgConf),
	}
}

// RecommendedSize 阈值处保守，高出 15 分时满仓
func RecommendedSize(score, threshold float64) float64 {
	return clamp(0.5+(score-threshold)/15, 0.5, 1.0)
}

func UrgencyOf(score, avgConfidence float64) model.Urgency {
	switch {
	case score >= 95 && avgConfidence >= 90:
		return model.UrgencyHigh
	case score < 88 || avgConfidence < 75:
		return model.UrgencyLow
	default:
		return model.UrgencyMedium
	}
}

// AverageConfidence 没有投票时为 0
func AverageConfidence(votes []model.AgentVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range votes {
		sum += v.Confidence
	}
	return sum / float64(len(votes))
}

// Conditions 信号成立的依据
func Conditions(st *model.ConsensusState, avgConf float64) []string {
	var out []string
	if n := len(st.Votes); n > 0 {
		agree := 0
		for _, v := range st.Votes {
			if v.Stance == st.Action {
				agree++
			}
		}
		switch {
		case agree == n:
			out = append(out, fmt.Sprintf("unanimous %s consensus across %d agents", st.Action, n))
		case float64(agree)/float64(n) >= 0.8:
			out = append(out, fmt.Sprintf("strong majority: %d of %d agents vote %s", agree, n, st.Action))
		}
	}
	if avgConf >= 90 {
		out = append(out, fmt.Sprintf("high average confidence %.1f", avgConf))
	}
	if st.Trend == model.TrendRising {
		out = append(out, "consensus trend rising")
	}
	for _, f := range st.Factors {
		if f.Contribution >= 0.3 {
			out = append(out, fmt.Sprintf("key factor %s contributes %.0f%%", f.Name, f.Contribution*100))
		}
	}
	return out
}

func (t *Tracker) publish(ev model.Event) {
	if t.pub == nil {
		return
	}
	if err := t.pub.Broadcast(ev); err != nil {
		logger.Error("publish consensus event failed",
			logger.Pair("type", ev.Type()),
			logger.ErrorField(err))
	}
}

// State 查询单个状态
func (t *Tracker) State(debateID, symbol string) (model.ConsensusState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[stateKey(debateID, symbol)]
	if !ok {
		return model.ConsensusState{}, false
	}
	return *st, true
}

// States 某个 debate 下全部状态，debateID 为空时返回全部
func (t *Tracker) States(debateID string) []model.ConsensusState {
	t.mu.RLock()
	out := make([]model.ConsensusState, 0, len(t.states))
	for _, st := range t.states {
		if debateID == "" || st.DebateID == debateID {
			out = append(out, *st)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DebateID != out[j].DebateID {
			return out[i].DebateID < out[j].DebateID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// ClearDebate 删除 debate 的全部状态
func (t *Tracker) ClearDebate(debateID string) int {
	t.mu.Lock()
	var symbols []string
	for key, st := range t.states {
		if st.DebateID == debateID {
			symbols = append(symbols, st.Symbol)
			delete(t.states, key)
		}
	}
	t.mu.Unlock()

	if len(symbols) == 0 {
		return 0
	}
	sort.Strings(symbols)
	t.publish(model.DebateCleared{DebateID: debateID, Symbols: symbols})
	logger.Info("debate cleared", logger.Pair("debate", debateID), logger.Pair("symbols", symbols))
	return len(symbols)
}

// ConsumeSignal 取出并删除信号，同一个 id 只有第一个调用者能拿到
func (t *Tracker) ConsumeSignal(signalID string) (*model.ExecutionSignal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.signals[signalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	delete(t.signals, signalID)
	return sig, nil
}

// PendingSignals 未过期的待执行信号，按创建时间排序
func (t *Tracker) PendingSignals() []model.ExecutionSignal {
	now := t.clock.Now()
	t.mu.RLock()
	out := make([]model.ExecutionSignal, 0, len(t.signals))
	for _, s := range t.signals {
		if !s.Expired(now) {
			out = append(out, *s)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PurgeExpired 删除过期信号
func (t *Tracker) PurgeExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, s := range t.signals {
		if s.Expired(now) {
			delete(t.signals, id)
			n++
		}
	}
	return n
}

// Run 定期清理过期信号
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.PurgeExpired(t.clock.Now()); n > 0 {
				logger.Info("expired signals purged", logger.Pair("count", n))
			}
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
