package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"tradeflow/internal/exchange"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
	"tradeflow/pkg/logger"
)

var (
	ErrOrderNotFound     = errors.New("ledger: order not found")
	ErrOrderTerminal     = errors.New("ledger: order already in terminal state")
	ErrIllegalTransition = errors.New("ledger: illegal order transition")
	ErrNotModifiable     = errors.New("ledger: order can only be modified while pending or queued")
	ErrInvalidOrder      = errors.New("ledger: invalid order")
	ErrClosed            = errors.New("ledger: closed")
	ErrOrderInFlight     = errors.New("ledger: order awaiting broker reply")
)

type Config struct {
	MaxQueueSize    int
	InterOrderDelay time.Duration // 队列逐单处理的间隔
	DefaultPriority int
	MaxHistory      int
	InitialCash     float64
	NodeID          int64
}

func DefaultConfig() Config {
	return Config{
		MaxQueueSize:    1000,
		InterOrderDelay: 100 * time.Millisecond,
		DefaultPriority: 5,
		MaxHistory:      10000,
		InitialCash:     100000,
		NodeID:          1,
	}
}

// Ledger 订单生命周期、成交、仓位与组合的唯一写入方
type Ledger struct {
	cfg     Config
	pub     Publisher
	broker  exchange.Broker
	prices  exchange.PriceSource
	clock   clock.Clock
	node    *snowflake.Node
	store   TradeStore
	sink    PortfolioSink
	journal Journal

	mu        sync.Mutex
	orders    map[string]*model.Order
	history   []string
	queue     *orderQueue
	positions map[string]map[string]*model.Position
	cash      map[string]float64
	trades    []model.TradeRecord
	inflight  map[string]struct{} // 已提交券商、回报未到
	closed    bool

	wake chan struct{}
}

func New(cfg Config, pub Publisher, broker exchange.Broker, prices exchange.PriceSource,
	clk clock.Clock, opts ...Option) (*Ledger, error) {
	def := DefaultConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.InterOrderDelay < 0 {
		cfg.InterOrderDelay = def.InterOrderDelay
	}
	if cfg.DefaultPriority <= 0 {
		cfg.DefaultPriority = def.DefaultPriority
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if broker == nil {
		return nil, errors.New("ledger: broker is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: snowflake node: %w", err)
	}
	l := &Ledger{
		cfg:       cfg,
		pub:       pub,
		broker:    broker,
		prices:    prices,
		clock:     clk,
		node:      node,
		orders:    make(map[string]*model.Order),
		queue:     newOrderQueue(cfg.MaxQueueSize),
		positions: make(map[string]map[string]*model.Position),
		cash:      make(map[string]float64),
		inflight:  make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) newOrder(req model.OrderRequest) (*model.Order, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	now := l.clock.Now()
	prio := req.Priority
	if prio <= 0 {
		prio = l.cfg.DefaultPriority
	}
	return &model.Order{
		ID:         l.node.Generate().String(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Status:     model.OrderPending,
		Priority:   prio,
		SignalID:   req.SignalID,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  req.ExpiresAt,
	}, nil
}

func validateRequest(req *model.OrderRequest) error {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Type == "" {
		req.Type = model.Market
	}
	switch {
	case req.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	case req.Side != model.Buy && req.Side != model.Sell:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, req.Side)
	case req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0):
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	case req.Type == model.Limit && req.LimitPrice <= 0:
		return fmt.Errorf("%w: limit order requires limit_price", ErrInvalidOrder)
	case req.Type == model.Stop && req.StopPrice <= 0:
		return fmt.Errorf("%w: stop order requires stop_price", ErrInvalidOrder)
	case req.Type != model.Market && req.Type != model.Limit && req.Type != model.Stop:
		return fmt.Errorf("%w: type %q", ErrInvalidOrder, req.Type)
	}
	return nil
}

// 调用方持有锁
func (l *Ledger) track(o *model.Order) {
	l.orders[o.ID] = o
	l.history = append(l.history, o.ID)
	for len(l.history) > l.cfg.MaxHistory {
		idx := -1
		for i, id := range l.history {
			if old, ok := l.orders[id]; !ok || old.Status.Terminal() {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		delete(l.orders, l.history[idx])
		l.history = append(l.history[:idx], l.history[idx+1:]...)
	}
}

// Enqueue 订单进入优先队列，由 Run 逐单提交。队列已满时淘汰最低优先级的订单。
func (l *Ledger) Enqueue(req model.OrderRequest) (*model.Order, error) {
	o, err := l.newOrder(req)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.track(o)
	_ = l.transition(o, model.OrderQueued)
	evicted := l.queue.push(o)
	for _, e := range evicted {
		e.Error = "evicted: queue full"
		_ = l.transition(e, model.OrderCancelled)
	}
	out := o.Clone()
	evictedCopies := cloneAll(evicted)
	l.mu.Unlock()

	for _, e := range evictedCopies {
		logger.Warn("order evicted from full queue",
			logger.Pair("order", e.ID),
			logger.Pair("priority", e.Priority))
		l.publishTerminal(e)
	}
	l.publish(model.NewOrderUpdate(out))
	l.notify()
	return out, nil
}

// Submit 绕过队列立即提交，返回最终订单。券商失败记为拒单，不返回错误。
func (l *Ledger) Submit(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	o, err := l.newOrder(req)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.track(o)
	_ = l.transition(o, model.OrderQueued)
	l.mu.Unlock()

	return l.process(ctx, o), nil
}

// process 提交一张已出队的订单并应用回报
func (l *Ledger) process(ctx context.Context, o *model.Order) *model.Order {
	l.mu.Lock()
	if err := l.transition(o, model.OrderSubmitted); err != nil {
		// 出队后被并发撤销
		out := o.Clone()
		l.mu.Unlock()
		return out
	}
	l.inflight[o.ID] = struct{}{}
	req := o.Clone()
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.inflight, o.ID)
		l.mu.Unlock()
	}()
	l.publish(model.NewOrderUpdate(req))

	res, err := l.broker.Submit(ctx, req)
	if err != nil {
		return l.reject(o, err.Error())
	}

	switch res.Status {
	case model.OrderRejected:
		reason := res.Error
		if reason == "" {
			reason = "rejected by broker"
		}
		return l.reject(o, reason)
	case model.OrderFilled, model.OrderPartial:
		if res.FilledQuantity <= 0 || res.AvgFillPrice <= 0 {
			return l.reject(o, "broker reported an empty fill")
		}
		return l.applyFill(o, res)
	default:
		// 已接受未成交，保持 submitted
		l.mu.Lock()
		out := o.Clone()
		l.mu.Unlock()
		return out
	}
}

func (l *Ledger) reject(o *model.Order, reason string) *model.Order {
	l.mu.Lock()
	if err := l.transition(o, model.OrderRejected); err != nil {
		// 期间已被撤销
		out := o.Clone()
		l.mu.Unlock()
		logger.Warn("reject skipped", logger.ErrorField(err))
		return out
	}
	o.Error = reason
	out := o.Clone()
	l.mu.Unlock()

	logger.Warn("order rejected",
		logger.Pair("order", out.ID),
		logger.Pair("symbol", out.Symbol),
		logger.Pair("reason", reason))
	l.publishTerminal(out)
	return out
}

// applyFill 成交数量不超过剩余数量，均价按全部成交加权重算
func (l *Ledger) applyFill(o *model.Order, res *exchange.SubmitResult) *model.Order {
	l.mu.Lock()
	now := l.clock.Now()
	qty := math.Min(res.FilledQuantity, o.Remaining())
	if qty <= 0 || o.Status.Terminal() {
		out := o.Clone()
		l.mu.Unlock()
		return out
	}

	o.Fills = append(o.Fills, model.Fill{
		Quantity:      qty,
		Price:         res.AvgFillPrice,
		BrokerOrderID: res.BrokerOrderID,
		Simulated:     res.Simulated,
		Timestamp:     now,
	})
	o.FilledQuantity += qty
	o.AvgFillPrice = weightedAvg(o.Fills)
	next := model.OrderPartial
	if o.Remaining() <= qtyEpsilon {
		next = model.OrderFilled
	}
	if err := l.transition(o, next); err != nil {
		logger.Error("apply fill", logger.ErrorField(err))
	}

	pos := l.position(o.UserID, o.Symbol)
	fr := applyToPosition(pos, o.Side, qty, res.AvgFillPrice, now)
	if pos.MarketPrice == 0 {
		pos.MarketPrice = res.AvgFillPrice
	}
	l.mark(pos)

	notional := qty * res.AvgFillPrice
	cash := l.cashOf(o.UserID)
	if o.Side == model.Buy {
		cash -= notional
	} else {
		cash += notional
	}
	l.cash[o.UserID] = cash

	rec := model.TradeRecord{
		ID:          l.node.Generate().String(),
		OrderID:     o.ID,
		UserID:      o.UserID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Quantity:    qty,
		Price:       res.AvgFillPrice,
		Notional:    notional,
		RealizedPnL: fr.realized,
		Closing:     fr.closedQty > 0,
		SignalID:    o.SignalID,
		Timestamp:   now,
	}
	if fr.entryCost > 0 {
		rec.ReturnPct = fr.realized / fr.entryCost * 100
	}
	l.trades = append(l.trades, rec)

	out := o.Clone()
	posCopy := *pos
	summary := l.summarize(o.UserID)
	l.mu.Unlock()

	logger.Info("order filled",
		logger.Pair("order", out.ID),
		logger.Pair("symbol", out.Symbol),
		logger.Pair("side", out.Side),
		logger.Pair("qty", qty),
		logger.Pair("price", res.AvgFillPrice),
		logger.Pair("status", out.Status))

	l.publish(model.NewOrderUpdate(out))
	l.publish(model.TradeCompleted{
		SignalID: out.SignalID,
		OrderIDs: []string{out.ID},
		UserID:   out.UserID,
		Symbol:   out.Symbol,
		Side:     out.Side,
		Quantity: qty,
		Price:    res.AvgFillPrice,
		Status:   out.Status,
	})
	l.persist(rec, posCopy)
	l.publishPortfolio(summary)
	return out
}

func weightedAvg(fills []model.Fill) float64 {
	var qty, value float64
	for _, f := range fills {
		qty += f.Quantity
		value += f.Quantity * f.Price
	}
	if qty == 0 {
		return 0
	}
	return value / qty
}

// Cancel 终态订单撤销失败；等待券商回报的订单不能撤销，否则回报里的成交会丢失
func (l *Ledger) Cancel(id string) (*model.Order, error) {
	l.mu.Lock()
	o, ok := l.orders[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if o.Status.Terminal() {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderTerminal, id, o.Status)
	}
	if _, busy := l.inflight[id]; busy {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderInFlight, id)
	}
	if err := l.transition(o, model.OrderCancelled); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.queue.remove(id)
	o.Error = "cancelled by user"
	out := o.Clone()
	l.mu.Unlock()

	l.publishTerminal(out)
	return out, nil
}

// Modify 仅 pending/queued 可修改
func (l *Ledger) Modify(id string, m model.OrderModify) (*model.Order, error) {
	l.mu.Lock()
	o, ok := l.orders[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if o.Status != model.OrderPending && o.Status != model.OrderQueued {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrNotModifiable, id, o.Status)
	}
	if m.Quantity != nil {
		if *m.Quantity <= 0 {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
		}
		o.Quantity = *m.Quantity
	}
	if m.LimitPrice != nil {
		o.LimitPrice = *m.LimitPrice
	}
	if m.StopPrice != nil {
		o.StopPrice = *m.StopPrice
	}
	if m.Priority != nil && *m.Priority > 0 && *m.Priority != o.Priority {
		o.Priority = *m.Priority
		l.queue.reposition(o)
	}
	o.UpdatedAt = l.clock.Now()
	out := o.Clone()
	l.mu.Unlock()

	l.publish(model.NewOrderUpdate(out))
	return out, nil
}

// next 取出下一张可提交的订单，顺带处理已过期的订单
func (l *Ledger) next() (*model.Order, bool) {
	for {
		l.mu.Lock()
		o, ok := l.queue.pop()
		if !ok {
			l.mu.Unlock()
			return nil, false
		}
		if o.ExpiresAt.IsZero() || !l.clock.Now().After(o.ExpiresAt) {
			l.mu.Unlock()
			return o, true
		}
		o.Error = "expired before submission"
		_ = l.transition(o, model.OrderExpired)
		out := o.Clone()
		l.mu.Unlock()
		l.publishTerminal(out)
	}
}

// DrainOnce 处理队首的一张订单，队列为空时返回 false
func (l *Ledger) DrainOnce(ctx context.Context) bool {
	o, ok := l.next()
	if !ok {
		return false
	}
	l.process(ctx, o)
	return true
}

// Run 单一消费者，逐单提交并在每单之后等待固定间隔
func (l *Ledger) Run(ctx context.Context) {
	for {
		if !l.DrainOnce(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
				continue
			}
		}
		if err := l.clock.Sleep(ctx, l.cfg.InterOrderDelay); err != nil {
			return
		}
	}
}

func (l *Ledger) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Shutdown 停止接单并撤销仍在排队的订单
func (l *Ledger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	var cancelled []*model.Order
	for {
		o, ok := l.queue.pop()
		if !ok {
			break
		}
		o.Error = "ledger shutdown"
		if l.transition(o, model.OrderCancelled) == nil {
			cancelled = append(cancelled, o.Clone())
		}
	}
	l.mu.Unlock()

	for _, o := range cancelled {
		l.publishTerminal(o)
	}
	logger.Info("ledger shutdown", logger.Pair("cancelled", len(cancelled)))
}

// Order 查询单个订单
func (l *Ledger) Order(id string) (*model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

// Orders 用户的订单，按创建顺序；userID 为空时返回全部
func (l *Ledger) Orders(userID string) []*model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Order, 0)
	for _, id := range l.history {
		o, ok := l.orders[id]
		if !ok || (userID != "" && o.UserID != userID) {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}

// Queued 当前排队中的订单，按处理顺序
func (l *Ledger) Queued() []*model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneAll(l.queue.snapshot())
}

func (l *Ledger) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.len()
}

// Trades 用户的成交记录
func (l *Ledger) Trades(userID string) []model.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.TradeRecord, 0)
	for _, t := range l.trades {
		if userID == "" || t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Restore 从持久化层恢复仓位与成交，现金按成交流水重放
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	st, err := l.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load state: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range st.Positions {
		p := st.Positions[i]
		pos := l.position(p.UserID, p.Symbol)
		*pos = p
		pos.Side = model.SideOf(pos.Quantity)
		pos.CostBasis = pos.Quantity * pos.AvgEntryPrice
		l.mark(pos)
	}
	for _, t := range st.Trades {
		cash := l.cashOf(t.UserID)
		if t.Side == model.Buy {
			cash -= t.Notional
		} else {
			cash += t.Notional
		}
		l.cash[t.UserID] = cash
	}
	l.trades = append(l.trades, st.Trades...)
	logger.Info("ledger state restored",
		logger.Pair("positions", len(st.Positions)),
		logger.Pair("trades", len(st.Trades)))
	return nil
}

func (l *Ledger) publish(ev model.Event) {
	if l.pub == nil {
		return
	}
	if err := l.pub.Broadcast(ev); err != nil {
		logger.Error("publish ledger event failed",
			logger.Pair("type", ev.Type()),
			logger.ErrorField(err))
	}
}

// 拒单、撤单、过期都推送状态变更和失败事件
func (l *Ledger) publishTerminal(o *model.Order) {
	l.publish(model.NewOrderUpdate(o))
	reason := o.Error
	if reason == "" {
		reason = string(o.Status)
	}
	l.publish(model.TradeFailed{
		SignalID: o.SignalID,
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Status:   string(o.Status),
		Reason:   reason,
	})
}

func (l *Ledger) publishPortfolio(s model.PortfolioSummary) {
	l.publish(model.PortfolioUpdate{Summary: s})
	if l.sink == nil {
		return
	}
	if err := l.sink.SavePortfolio(context.Background(), s); err != nil {
		logger.Warn("save portfolio snapshot failed",
			logger.Pair("user", s.UserID),
			logger.ErrorField(err))
	}
}

// 持久化失败只记录日志
func (l *Ledger) persist(rec model.TradeRecord, pos model.Position) {
	if l.journal != nil {
		if err := l.journal.Record(rec); err != nil {
			logger.Warn("journal trade failed", logger.Pair("trade", rec.ID), logger.ErrorField(err))
		}
	}
	if l.store == nil {
		return
	}
	ctx := context.Background()
	if err := l.store.AppendTradeRecord(ctx, rec); err != nil {
		logger.Error("append trade record failed", logger.Pair("trade", rec.ID), logger.ErrorField(err))
	}
	if err := l.store.SavePosition(ctx, pos); err != nil {
		logger.Error("save position failed",
			logger.Pair("user", pos.UserID),
			logger.Pair("symbol", pos.Symbol),
			logger.ErrorField(err))
	}
}

func cloneAll(in []*model.Order) []*model.Order {
	out := make([]*model.Order, 0, len(in))
	for _, o := range in {
		out = append(out, o.Clone())
	}
	return out
}
