package exchange

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

type SimConfig struct {
	PartialFillThreshold float64       // 超过该数量按 70%~100% 随机部分成交
	Latency              time.Duration // 模拟网络与撮合延迟
	SlippageBps          float64
}

// SimulatedBroker 模拟撮合
type SimulatedBroker struct {
	cfg    SimConfig
	prices PriceSource
	clock  clock.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedBroker(cfg SimConfig, prices PriceSource, clk clock.Clock, rng *rand.Rand) *SimulatedBroker {
	if clk == nil {
		clk = clock.New()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedBroker{cfg: cfg, prices: prices, clock: clk, rng: rng}
}

func (s *SimulatedBroker) Submit(ctx context.Context, o *model.Order) (*SubmitResult, error) {
	if s.cfg.Latency > 0 {
		if err := s.clock.Sleep(ctx, s.cfg.Latency); err != nil {
			return nil, err
		}
	}
	res := &SubmitResult{BrokerOrderID: "sim-" + uuid.NewString(), Simulated: true}

	price, err := s.prices.Price(o.Symbol)
	if err != nil {
		res.Status = model.OrderRejected
		res.Error = err.Error()
		return res, nil
	}
	qty := o.Remaining()
	if qty <= 0 {
		res.Status = model.OrderRejected
		res.Error = "nothing to fill"
		return res, nil
	}

	fillPrice, ok := s.fillPrice(o, price)
	if !ok {
		// 挂单已接受但未触发
		res.Status = model.OrderSubmitted
		return res, nil
	}

	filled := qty
	if s.cfg.PartialFillThreshold > 0 && qty > s.cfg.PartialFillThreshold {
		s.mu.Lock()
		ratio := 0.7 + s.rng.Float64()*0.3
		s.mu.Unlock()
		filled = math.Max(1, math.Floor(qty*ratio))
	}

	res.FilledQuantity = filled
	res.AvgFillPrice = fillPrice
	if filled < qty {
		res.Status = model.OrderPartial
	} else {
		res.Status = model.OrderFilled
	}
	return res, nil
}

// 市价带滑点，限价和止损需满足触发条件
func (s *SimulatedBroker) fillPrice(o *model.Order, ref float64) (float64, bool) {
	slip := s.cfg.SlippageBps / 10000
	market := ref * (1 + slip)
	if o.Side == model.Sell {
		market = ref * (1 - slip)
	}
	switch o.Type {
	case model.Limit:
		if o.Side == model.Buy {
			if ref > o.LimitPrice {
				return 0, false
			}
			return math.Min(market, o.LimitPrice), true
		}
		if ref < o.LimitPrice {
			return 0, false
		}
		return math.Max(market, o.LimitPrice), true
	case model.Stop:
		if o.Side == model.Buy && ref < o.StopPrice {
			return 0, false
		}
		if o.Side == model.Sell && ref > o.StopPrice {
			return 0, false
		}
		return market, true
	default:
		return market, true
	}
}
