package ledger

import (
	"math"
	"sort"

	"tradeflow/internal/model"
)

// 调用方持有锁
func (l *Ledger) cashOf(userID string) float64 {
	c, ok := l.cash[userID]
	if !ok {
		c = l.cfg.InitialCash
		l.cash[userID] = c
	}
	return c
}

// 调用方持有锁
func (l *Ledger) position(userID, symbol string) *model.Position {
	book, ok := l.positions[userID]
	if !ok {
		book = make(map[string]*model.Position)
		l.positions[userID] = book
	}
	p, ok := book[symbol]
	if !ok {
		p = &model.Position{UserID: userID, Symbol: symbol, Side: model.PositionFlat}
		book[symbol] = p
	}
	return p
}

// 参考价优先，取不到时保留上一次的市价
func (l *Ledger) mark(p *model.Position) {
	price := p.MarketPrice
	if l.prices != nil {
		if ref, err := l.prices.Price(p.Symbol); err == nil {
			price = ref
		}
	}
	p.Mark(price)
}

// summarize 由仓位和未完成订单推导组合概况，调用方持有锁
func (l *Ledger) summarize(userID string) model.PortfolioSummary {
	s := model.PortfolioSummary{
		UserID:    userID,
		Cash:      l.cashOf(userID),
		UpdatedAt: l.clock.Now(),
	}
	for _, p := range l.positions[userID] {
		s.PositionsValue += p.MarketValue
		s.RealizedPnL += p.RealizedPnL
		s.UnrealizedPnL += p.UnrealizedPnL
		if p.Side != model.PositionFlat {
			s.Positions++
		}
	}

	reserved := 0.0
	for _, o := range l.orders {
		if o.UserID != userID || o.Status.Terminal() {
			continue
		}
		s.OpenOrders++
		if o.Side == model.Buy {
			reserved += o.Remaining() * l.referencePrice(o)
		}
	}

	s.TotalValue = s.Cash + s.PositionsValue
	s.BuyingPower = math.Max(0, s.Cash-reserved)
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	return s
}

// 预留资金按限价估算，市价单按参考价
func (l *Ledger) referencePrice(o *model.Order) float64 {
	if o.Type == model.Limit && o.LimitPrice > 0 {
		return o.LimitPrice
	}
	if l.prices != nil {
		if p, err := l.prices.Price(o.Symbol); err == nil {
			return p
		}
	}
	if o.StopPrice > 0 {
		return o.StopPrice
	}
	return 0
}

// Positions 用户的全部非空仓位
func (l *Ledger) Positions(userID string) []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, 0, len(l.positions[userID]))
	for _, p := range l.positions[userID] {
		if p.Side == model.PositionFlat && p.RealizedPnL == 0 {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position 单个仓位
func (l *Ledger) Position(userID, symbol string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[userID][symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Portfolio 当前组合概况
func (l *Ledger) Portfolio(userID string) model.PortfolioSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summarize(userID)
}

// MarkPrices 按参考价重估全部仓位并推送组合更新
func (l *Ledger) MarkPrices() {
	l.mu.Lock()
	var summaries []model.PortfolioSummary
	for userID, book := range l.positions {
		for _, p := range book {
			l.mark(p)
		}
		summaries = append(summaries, l.summarize(userID))
	}
	l.mu.Unlock()

	for _, s := range summaries {
		l.publishPortfolio(s)
	}
}
