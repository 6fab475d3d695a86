package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"tradeflow/internal/consensus"
	"tradeflow/internal/exchange"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
	"tradeflow/pkg/logger"
)

var (
	ErrSignalNotFound     = errors.New("pipeline: signal not found")
	ErrSignalExpired      = errors.New("pipeline: signal expired")
	ErrScoreBelowMinimum  = errors.New("pipeline: consensus score below minimum")
	ErrDailyCapReached    = errors.New("pipeline: daily trade cap reached")
	ErrQuantityTooSmall   = errors.New("pipeline: notional below one unit")
	ErrDispatchQueueFull  = errors.New("pipeline: dispatch queue full")
	ErrNonExecutableTrade = errors.New("pipeline: signal action is not executable")
)

// SignalSource 信号来源，ConsumeSignal 对同一 id 只成功一次
type SignalSource interface {
	ConsumeSignal(signalID string) (*model.ExecutionSignal, error)
}

// OrderSubmitter 同步下单
type OrderSubmitter interface {
	Submit(ctx context.Context, req model.OrderRequest) (*model.Order, error)
}

// Publisher 事件出口，由 hub 实现
type Publisher interface {
	Broadcast(ev model.Event) error
}

// AuditStore 执行结果审计
type AuditStore interface {
	SaveExecution(ctx context.Context, res *model.ExecutionResult) error
}

type Config struct {
	MinScore        float64
	MaxDailyTrades  int
	MaxPositionSize float64 // 满仓名义金额
	HITLEnabled     bool
	HITLThreshold   float64
	StealthEnabled  bool
	StealthSlices   int
	SliceDelay      time.Duration
	UserID          string
	DispatchBuffer  int
}

func DefaultConfig() Config {
	return Config{
		MinScore:        85,
		MaxDailyTrades:  10,
		MaxPositionSize: 10000,
		HITLEnabled:     true,
		HITLThreshold:   5000,
		StealthEnabled:  true,
		StealthSlices:   5,
		SliceDelay:      2 * time.Second,
		UserID:          "system",
		DispatchBuffer:  64,
	}
}

// Pipeline 把执行信号变成订单：校验、人工确认闸门、拆单执行
type Pipeline struct {
	cfg     Config
	signals SignalSource
	orders  OrderSubmitter
	prices  exchange.PriceSource
	pub     Publisher
	clock   clock.Clock
	audit   AuditStore

	// 串行执行信号，校验计数与成交计数在同一临界区内
	execMu sync.Mutex

	mu          sync.Mutex
	day         string
	tradesToday int
	held        map[string]*model.ExecutionSignal

	dispatch chan string
}

type Option func(*Pipeline)

func WithAudit(a AuditStore) Option {
	return func(p *Pipeline) { p.audit = a }
}

func New(cfg Config, signals SignalSource, orders OrderSubmitter, prices exchange.PriceSource,
	pub Publisher, clk clock.Clock, opts ...Option) *Pipeline {
	if cfg.StealthSlices <= 0 {
		cfg.StealthSlices = 1
	}
	if cfg.UserID == "" {
		cfg.UserID = "system"
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 64
	}
	if clk == nil {
		clk = clock.New()
	}
	p := &Pipeline{
		cfg:      cfg,
		signals:  signals,
		orders:   orders,
		prices:   prices,
		pub:      pub,
		clock:    clk,
		held:     make(map[string]*model.ExecutionSignal),
		dispatch: make(chan string, cfg.DispatchBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExecuteSignal 先原子地取走信号，再校验并执行。
// 校验失败返回错误；人工确认与执行结果都通过 ExecutionResult 返回。
func (p *Pipeline) ExecuteSignal(ctx context.Context, signalID string) (*model.ExecutionResult, error) {
	sig, err := p.signals.ConsumeSignal(signalID)
	if err != nil {
		if errors.Is(err, consensus.ErrSignalNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
		}
		return nil, err
	}
	return p.execute(ctx, sig, true)
}

// Approve 人工确认后执行，仅跳过确认闸门，其余校验照常
func (p *Pipeline) Approve(ctx context.Context, signalID string) (*model.ExecutionResult, error) {
	p.mu.Lock()
	sig, ok := p.held[signalID]
	delete(p.held, signalID)
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	logger.Info("held signal approved", logger.Pair("signal", signalID))
	return p.execute(ctx, sig, false)
}

// Reject 丢弃等待确认的信号
func (p *Pipeline) Reject(signalID string) error {
	p.mu.Lock()
	_, ok := p.held[signalID]
	delete(p.held, signalID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	logger.Info("held signal rejected", logger.Pair("signal", signalID))
	return nil
}

// Held 等待人工确认的信号
func (p *Pipeline) Held() []model.ExecutionSignal {
	p.mu.Lock()
	out := make([]model.ExecutionSignal, 0, len(p.held))
	for _, s := range p.held {
		out = append(out, *s)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TradesToday 当日已执行次数
func (p *Pipeline) TradesToday() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollover()
	return p.tradesToday
}

// 调用方持有锁，按自然日重置计数
func (p *Pipeline) rollover() {
	day := p.clock.Now().Format("2006-01-02")
	if day != p.day {
		p.day = day
		p.tradesToday = 0
	}
}

func (p *Pipeline) validate(sig *model.ExecutionSignal) error {
	if sig.Action != model.ActionBuy && sig.Action != model.ActionSell {
		return fmt.Errorf("%w: %s", ErrNonExecutableTrade, sig.Action)
	}
	if sig.ConsensusScore < p.cfg.MinScore {
		return fmt.Errorf("%w: %.1f < %.1f", ErrScoreBelowMinimum, sig.ConsensusScore, p.cfg.MinScore)
	}
	if sig.Expired(p.clock.Now()) {
		return fmt.Errorf("%w: valid until %s", ErrSignalExpired, sig.ValidUntil.Format(time.RFC3339))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollover()
	if p.cfg.MaxDailyTrades > 0 && p.tradesToday >= p.cfg.MaxDailyTrades {
		return fmt.Errorf("%w: %d/%d", ErrDailyCapReached, p.tradesToday, p.cfg.MaxDailyTrades)
	}
	return nil
}

func (p *Pipeline) execute(ctx context.Context, sig *model.ExecutionSignal, gate bool) (res *model.ExecutionResult, err error) {
	p.execMu.Lock()
	defer p.execMu.Unlock()

	if err := p.validate(sig); err != nil {
		logger.Warn("signal validation failed",
			logger.Pair("signal", sig.SignalID),
			logger.Pair("symbol", sig.Symbol),
			logger.ErrorField(err))
		p.publish(model.TradeFailed{
			SignalID: sig.SignalID,
			Symbol:   sig.Symbol,
			Side:     model.OrderSide(sig.Action),
			Status:   string(model.ExecFailed),
			Reason:   err.Error(),
		})
		return nil, err
	}

	notional := sig.RecommendedSize * p.cfg.MaxPositionSize
	res = &model.ExecutionResult{
		SignalID:       sig.SignalID,
		Symbol:         sig.Symbol,
		Action:         sig.Action,
		EstimatedValue: notional,
		Conditions:     sig.Conditions,
		StartedAt:      p.clock.Now(),
	}

	if gate && p.cfg.HITLEnabled && notional > p.cfg.HITLThreshold {
		p.hold(sig, res)
		return res, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("signal execution panicked",
				logger.Pair("signal", sig.SignalID),
				logger.Pair("panic", fmt.Sprint(r)))
			res.Status = model.ExecFailed
			res.Message = fmt.Sprintf("execution aborted: %v", r)
			res.CompletedAt = p.clock.Now()
			p.publish(model.TradeFailed{
				SignalID: sig.SignalID,
				Symbol:   sig.Symbol,
				Side:     model.OrderSide(sig.Action),
				Status:   string(model.ExecFailed),
				Reason:   res.Message,
			})
			p.record(res)
			err = nil
		}
	}()

	qty, qerr := p.quantity(sig.Symbol, notional)
	if qerr != nil {
		res.Status = model.ExecFailed
		res.Message = qerr.Error()
		p.finish(sig, res)
		return res, nil
	}
	res.TotalQuantity = qty

	if p.cfg.StealthEnabled && p.cfg.StealthSlices > 1 {
		p.runStealth(ctx, sig, res)
	} else {
		p.runSingle(ctx, sig, res)
	}
	p.finish(sig, res)
	return res, nil
}

// 超过阈值停在人工确认，不是错误
func (p *Pipeline) hold(sig *model.ExecutionSignal, res *model.ExecutionResult) {
	p.mu.Lock()
	p.held[sig.SignalID] = sig
	p.mu.Unlock()

	res.Status = model.ExecHITLRequired
	res.Message = fmt.Sprintf("estimated value %.2f exceeds approval threshold %.2f", res.EstimatedValue, p.cfg.HITLThreshold)
	res.CompletedAt = p.clock.Now()

	logger.Info("signal held for approval",
		logger.Pair("signal", sig.SignalID),
		logger.Pair("symbol", sig.Symbol),
		logger.Pair("value", res.EstimatedValue))
	p.publish(model.HITLRequired{
		SignalID:       sig.SignalID,
		Symbol:         sig.Symbol,
		Action:         sig.Action,
		EstimatedValue: res.EstimatedValue,
		Threshold:      p.cfg.HITLThreshold,
		Score:          sig.ConsensusScore,
		Message:        res.Message,
	})
	p.record(res)
}

// quantity 名义金额按参考价向下取整
func (p *Pipeline) quantity(symbol string, notional float64) (float64, error) {
	price, err := p.prices.Price(symbol)
	if err != nil {
		return 0, err
	}
	qty := math.Floor(notional / price)
	if qty < 1 {
		return 0, fmt.Errorf("%w: %.2f at %.2f", ErrQuantityTooSmall, notional, price)
	}
	return qty, nil
}

func (p *Pipeline) request(sig *model.ExecutionSignal, qty float64) model.OrderRequest {
	return model.OrderRequest{
		UserID:   p.cfg.UserID,
		Symbol:   sig.Symbol,
		Side:     model.OrderSide(sig.Action),
		Type:     model.Market,
		Quantity: qty,
		Priority: priorityOf(sig.Urgency),
		SignalID: sig.SignalID,
	}
}

// priorityOf 切片经 Ledger.Submit 同步提交不进队列，优先级只随订单记录
func priorityOf(u model.Urgency) int {
	switch u {
	case model.UrgencyHigh:
		return 9
	case model.UrgencyLow:
		return 3
	default:
		return 5
	}
}

func (p *Pipeline) runSingle(ctx context.Context, sig *model.ExecutionSignal, res *model.ExecutionResult) {
	res.Slices = 1
	p.submitSlice(ctx, sig, res, 1, res.TotalQuantity)
}

// runStealth 顺序执行切片，切片之间等待，最后一片之后不等待。
// 单片失败不影响后续切片，已成交的切片不回滚。
func (p *Pipeline) runStealth(ctx context.Context, sig *model.ExecutionSignal, res *model.ExecutionResult) {
	slices := SplitQuantity(res.TotalQuantity, p.cfg.StealthSlices)
	res.Stealth = true
	res.Slices = len(slices)

	p.publish(model.StealthStarted{
		SignalID:      sig.SignalID,
		Symbol:        sig.Symbol,
		Action:        sig.Action,
		TotalQuantity: res.TotalQuantity,
		Slices:        len(slices),
		SliceDelayMs:  p.cfg.SliceDelay.Milliseconds(),
	})

	for i, q := range slices {
		if i > 0 {
			if err := p.clock.Sleep(ctx, p.cfg.SliceDelay); err != nil {
				res.Message = fmt.Sprintf("stopped after %d of %d slices: %v", i, len(slices), err)
				return
			}
		}
		p.submitSlice(ctx, sig, res, i+1, q)
	}
}

func (p *Pipeline) submitSlice(ctx context.Context, sig *model.ExecutionSignal, res *model.ExecutionResult, n int, qty float64) {
	entry := model.ExecutionLog{
		Timestamp: p.clock.Now(),
		Slice:     n,
		Symbol:    sig.Symbol,
		Side:      model.OrderSide(sig.Action),
		Quantity:  qty,
	}
	o, err := p.orders.Submit(ctx, p.request(sig, qty))
	if err != nil {
		entry.Status = model.OrderRejected
		entry.Note = err.Error()
		res.Logs = append(res.Logs, entry)
		logger.Warn("slice submit failed",
			logger.Pair("signal", sig.SignalID),
			logger.Pair("slice", n),
			logger.ErrorField(err))
		return
	}

	entry.OrderID = o.ID
	entry.Filled = o.FilledQuantity
	entry.Price = o.AvgFillPrice
	entry.Status = o.Status
	entry.Note = o.Error
	res.Logs = append(res.Logs, entry)
	res.OrderIDs = append(res.OrderIDs, o.ID)

	if o.FilledQuantity > 0 {
		value := res.AvgFillPrice*res.FilledQuantity + o.AvgFillPrice*o.FilledQuantity
		res.FilledQuantity += o.FilledQuantity
		res.AvgFillPrice = value / res.FilledQuantity
	}
}

// finish 汇总状态、计数、推送与审计
func (p *Pipeline) finish(sig *model.ExecutionSignal, res *model.ExecutionResult) {
	res.CompletedAt = p.clock.Now()
	switch {
	case res.FilledQuantity <= 0:
		res.Status = model.ExecFailed
	case res.FilledQuantity < res.TotalQuantity:
		res.Status = model.ExecPartial
	default:
		res.Status = model.ExecFilled
	}

	if res.Status == model.ExecFailed {
		if res.Message == "" {
			res.Message = failureReason(res)
		}
		logger.Warn("signal execution failed",
			logger.Pair("signal", sig.SignalID),
			logger.Pair("symbol", sig.Symbol),
			logger.Pair("reason", res.Message))
		p.publish(model.TradeFailed{
			SignalID: sig.SignalID,
			Symbol:   sig.Symbol,
			Side:     model.OrderSide(sig.Action),
			Status:   string(res.Status),
			Reason:   res.Message,
		})
		p.record(res)
		return
	}

	p.mu.Lock()
	p.rollover()
	p.tradesToday++
	p.mu.Unlock()

	filledIDs := make([]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		if l.Filled > 0 {
			filledIDs = append(filledIDs, l.OrderID)
		}
	}
	logger.Info("signal executed",
		logger.Pair("signal", sig.SignalID),
		logger.Pair("symbol", sig.Symbol),
		logger.Pair("status", res.Status),
		logger.Pair("filled", res.FilledQuantity),
		logger.Pair("vwap", res.AvgFillPrice))
	p.publish(model.TradeCompleted{
		SignalID: sig.SignalID,
		OrderIDs: filledIDs,
		UserID:   p.cfg.UserID,
		Symbol:   sig.Symbol,
		Side:     model.OrderSide(sig.Action),
		Quantity: res.FilledQuantity,
		Price:    res.AvgFillPrice,
		Status:   model.OrderStatus(res.Status),
		Stealth:  res.Stealth,
		Slices:   res.Slices,
	})
	p.record(res)
}

func failureReason(res *model.ExecutionResult) string {
	for i := len(res.Logs) - 1; i >= 0; i-- {
		if res.Logs[i].Note != "" {
			return res.Logs[i].Note
		}
	}
	return "no fills"
}

func (p *Pipeline) publish(ev model.Event) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Broadcast(ev); err != nil {
		logger.Error("publish pipeline event failed",
			logger.Pair("type", ev.Type()),
			logger.ErrorField(err))
	}
}

func (p *Pipeline) record(res *model.ExecutionResult) {
	if p.audit == nil {
		return
	}
	if err := p.audit.SaveExecution(context.Background(), res); err != nil {
		logger.Warn("save execution audit failed",
			logger.Pair("signal", res.SignalID),
			logger.ErrorField(err))
	}
}

// SplitQuantity 切成 n 片，最后一片带余数；数量不足 n 时按整数单位切
func SplitQuantity(total float64, n int) []float64 {
	if total <= 0 {
		return nil
	}
	if n <= 1 {
		return []float64{total}
	}
	if total < float64(n) {
		n = int(math.Max(1, math.Floor(total)))
		if n == 1 {
			return []float64{total}
		}
	}
	base := math.Floor(total / float64(n))
	out := make([]float64, n)
	for i := 0; i < n-1; i++ {
		out[i] = base
	}
	out[n-1] = total - base*float64(n-1)
	return out
}
