package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/validator"
)

var (
	ErrUnknownObserver = errors.New("hub: unknown observer")
	ErrUnknownChannel  = errors.New("hub: unknown channel")
	ErrInvalidEvent    = errors.New("hub: invalid event")
	ErrClosed          = errors.New("hub: closed")
)

// Observer 订阅方的传输层，Send 返回 false 表示当前不可写，本条消息直接丢弃
type Observer interface {
	ID() string
	Send(msg []byte) bool
	Close()
}

type Config struct {
	SweepInterval time.Duration
	IdleTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{SweepInterval: 30 * time.Second, IdleTimeout: 60 * time.Second}
}

// 每种事件允许投递的频道
var routes = map[model.EventType][]model.Channel{
	model.EventConsensusUpdate: {model.ChannelConsensus, model.ChannelDebates},
	model.EventThresholdAlert:  {model.ChannelAlerts, model.ChannelConsensus},
	model.EventSignalGenerated: {model.ChannelConsensus, model.ChannelTrades, model.ChannelAlerts},
	model.EventDebateCleared:   {model.ChannelDebates},
	model.EventAgentVotes:      {model.ChannelAgents, model.ChannelDebates},
	model.EventOrderUpdate:     {model.ChannelTrades},
	model.EventTradeCompleted:  {model.ChannelTrades},
	model.EventTradeFailed:     {model.ChannelTrades, model.ChannelAlerts},
	model.EventStealthStarted:  {model.ChannelTrades},
	model.EventHITLRequired:    {model.ChannelAlerts, model.ChannelTrades},
	model.EventPortfolioUpdate: {model.ChannelTrades},
}

// Routes 返回事件类型可投递的频道
func Routes(t model.EventType) []model.Channel {
	return append([]model.Channel(nil), routes[t]...)
}

type member struct {
	observer Observer
	channels map[model.Channel]struct{}
	lastSeen time.Time
}

// Hub 按频道管理订阅者并扇出事件
type Hub struct {
	cfg   Config
	clock clock.Clock

	mu       sync.RWMutex
	members  map[string]*member
	channels map[model.Channel]map[string]*member
	mirrors  []func(model.Envelope)
	closed   bool

	// 同一频道内按发布顺序投递
	pubMu sync.Mutex
}

func New(cfg Config, clk clock.Clock) *Hub {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	h := &Hub{
		cfg:      cfg,
		clock:    clk,
		members:  make(map[string]*member),
		channels: make(map[model.Channel]map[string]*member),
	}
	for _, ch := range model.Channels {
		h.channels[ch] = make(map[string]*member)
	}
	return h
}

// Register 注册观察者，同 ID 的旧连接会被替换并关闭
func (h *Hub) Register(o Observer) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	old := h.detach(o.ID())
	h.members[o.ID()] = &member{
		observer: o,
		channels: make(map[model.Channel]struct{}),
		lastSeen: h.clock.Now(),
	}
	h.mu.Unlock()

	if old != nil && old.observer != o {
		old.observer.Close()
		logger.Info("observer replaced", logger.Pair("observer", o.ID()))
	}
	return nil
}

// Subscribe 幂等
func (h *Hub) Subscribe(observerID string, ch model.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[observerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObserver, observerID)
	}
	m.channels[ch] = struct{}{}
	m.lastSeen = h.clock.Now()
	h.channels[ch][observerID] = m
	return nil
}

// Unsubscribe 幂等
func (h *Hub) Unsubscribe(observerID string, ch model.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[observerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObserver, observerID)
	}
	delete(m.channels, ch)
	m.lastSeen = h.clock.Now()
	delete(h.channels[ch], observerID)
	return nil
}

// Touch 刷新活跃时间（收到 pong 或任意消息）
func (h *Hub) Touch(observerID string) {
	h.mu.Lock()
	if m, ok := h.members[observerID]; ok {
		m.lastSeen = h.clock.Now()
	}
	h.mu.Unlock()
}

// Disconnect 移除观察者并释放其全部订阅
func (h *Hub) Disconnect(observerID string, reason string) {
	h.mu.Lock()
	m := h.detach(observerID)
	h.mu.Unlock()
	if m == nil {
		return
	}
	m.observer.Close()
	logger.Info("observer disconnected",
		logger.Pair("observer", observerID),
		logger.Pair("reason", reason),
		logger.Pair("channels", len(m.channels)))
}

// Release 仅当 o 仍是该 ID 的当前观察者时才断开，被替换的旧连接退出时不影响新连接
func (h *Hub) Release(o Observer, reason string) {
	h.mu.Lock()
	m, ok := h.members[o.ID()]
	if !ok || m.observer != o {
		h.mu.Unlock()
		o.Close()
		return
	}
	h.detach(o.ID())
	h.mu.Unlock()
	o.Close()
	logger.Info("observer disconnected",
		logger.Pair("observer", o.ID()),
		logger.Pair("reason", reason),
		logger.Pair("channels", len(m.channels)))
}

// 调用方持有写锁
func (h *Hub) detach(observerID string) *member {
	m, ok := h.members[observerID]
	if !ok {
		return nil
	}
	delete(h.members, observerID)
	for ch := range m.channels {
		if subs, ok := h.channels[ch]; ok && subs[observerID] == m {
			delete(subs, observerID)
		}
	}
	return m
}

// Mirror 注册一个镜像回调，每条成功投递的信封都会回调一次，回调不能阻塞
func (h *Hub) Mirror(fn func(model.Envelope)) {
	h.mu.Lock()
	h.mirrors = append(h.mirrors, fn)
	h.mu.Unlock()
}

// Publish 校验事件后投递给频道当前所有订阅者，空频道直接返回
func (h *Hub) Publish(ch model.Channel, ev model.Event) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if !routed(ev.Type(), ch) {
		return fmt.Errorf("%w: %s is not routed to %s", ErrInvalidEvent, ev.Type(), ch)
	}
	if err := validator.Struct(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.Type(), err)
	}

	env := model.Envelope{
		Channel:   ch,
		Type:      ev.Type(),
		Data:      ev,
		Timestamp: h.clock.Now(),
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrInvalidEvent, err)
	}

	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]Observer, 0, len(h.channels[ch]))
	for _, m := range h.channels[ch] {
		targets = append(targets, m.observer)
	}
	mirrors := h.mirrors
	h.mu.RUnlock()

	for _, o := range targets {
		if !o.Send(msg) {
			logger.Debug("observer not ready, skipped",
				logger.Pair("observer", o.ID()),
				logger.Pair("channel", ch))
		}
	}
	for _, fn := range mirrors {
		fn(env)
	}
	return nil
}

// Broadcast 投递到事件路由表中的全部频道
func (h *Hub) Broadcast(ev model.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	var errs error
	for _, ch := range routes[ev.Type()] {
		errs = multierr.Append(errs, h.Publish(ch, ev))
	}
	return errs
}

func routed(t model.EventType, ch model.Channel) bool {
	for _, c := range routes[t] {
		if c == ch {
			return true
		}
	}
	return false
}

// Sweep 断开超过空闲时间的观察者，返回断开数量
func (h *Hub) Sweep() int {
	now := h.clock.Now()
	var idle []string
	h.mu.RLock()
	for id, m := range h.members {
		if now.Sub(m.lastSeen) > h.cfg.IdleTimeout {
			idle = append(idle, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range idle {
		h.Disconnect(id, "idle timeout")
	}
	return len(idle)
}

// Run 定时执行存活检查，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				logger.Info("liveness sweep", logger.Pair("disconnected", n))
			}
		}
	}
}

// Shutdown 关闭所有连接，之后的发布返回 ErrClosed
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	members := h.members
	h.members = make(map[string]*member)
	for ch := range h.channels {
		h.channels[ch] = make(map[string]*member)
	}
	h.mu.Unlock()

	for _, m := range members {
		m.observer.Close()
	}
	logger.Info("hub shutdown", logger.Pair("observers", len(members)))
}

func (h *Hub) SubscriberCount(ch model.Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[ch])
}

func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Subscriptions 观察者当前订阅的频道
func (h *Hub) Subscriptions(observerID string) []model.Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.members[observerID]
	if !ok {
		return nil
	}
	out := make([]model.Channel, 0, len(m.channels))
	for ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
