package exchange

import (
	"fmt"
	"strings"
	"sync"
)

// PriceBook 静态参考价表，模拟模式下用于下单数量换算和成交
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceBook(prices map[string]float64) *PriceBook {
	b := &PriceBook{prices: make(map[string]float64, len(prices))}
	for s, p := range prices {
		b.prices[strings.ToUpper(s)] = p
	}
	return b
}

func (b *PriceBook) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	b.prices[strings.ToUpper(symbol)] = price
	b.mu.Unlock()
}

func (b *PriceBook) Price(symbol string) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[strings.ToUpper(symbol)]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Snapshot 全部价格的拷贝
func (b *PriceBook) Snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.prices))
	for k, v := range b.prices {
		out[k] = v
	}
	return out
}
