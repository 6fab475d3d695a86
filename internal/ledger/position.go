package ledger

import (
	"math"
	"time"

	"tradeflow/internal/model"
)

const qtyEpsilon = 1e-9

// fillResult 一次成交对仓位的影响
type fillResult struct {
	realized  float64 // 本次实现盈亏
	closedQty float64 // 平掉的数量
	entryCost float64 // 平仓部分的开仓成本，用于计算收益率
}

// applyToPosition 把成交计入仓位。同向加仓重新计算均价，
// 反向成交先按开仓均价实现盈亏，剩余部分在成交价开出反向仓位。
func applyToPosition(p *model.Position, side model.OrderSide, qty, price float64, now time.Time) fillResult {
	var res fillResult
	signed := qty
	if side == model.Sell {
		signed = -qty
	}

	switch {
	case math.Abs(p.Quantity) < qtyEpsilon || sameSign(p.Quantity, signed):
		newQty := p.Quantity + signed
		newCost := p.CostBasis + signed*price
		p.Quantity = newQty
		p.CostBasis = newCost
		p.AvgEntryPrice = newCost / newQty
	default:
		closeQty := math.Min(math.Abs(signed), math.Abs(p.Quantity))
		if p.Quantity > 0 {
			res.realized = (price - p.AvgEntryPrice) * closeQty
		} else {
			res.realized = (p.AvgEntryPrice - price) * closeQty
		}
		res.closedQty = closeQty
		res.entryCost = p.AvgEntryPrice * closeQty

		if p.Quantity > 0 {
			p.Quantity -= closeQty
		} else {
			p.Quantity += closeQty
		}
		p.RealizedPnL += res.realized

		rest := math.Abs(signed) - closeQty
		switch {
		case rest > qtyEpsilon:
			p.Quantity = math.Copysign(rest, signed)
			p.AvgEntryPrice = price
		case math.Abs(p.Quantity) < qtyEpsilon:
			p.Quantity = 0
			p.AvgEntryPrice = 0
		}
		p.CostBasis = p.Quantity * p.AvgEntryPrice
	}

	p.Side = model.SideOf(p.Quantity)
	p.UpdatedAt = now
	return res
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
