package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/model"
)

var ErrInvalidPeriod = errors.New("ledger: invalid report period")

// 年化系数
const tradingDays = 252

func periodStart(now time.Time, period model.ReportPeriod) (time.Time, error) {
	switch period {
	case model.PeriodDay:
		return now.Add(-24 * time.Hour), nil
	case model.PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case model.PeriodMonth:
		return now.AddDate(0, 0, -30), nil
	case model.PeriodAll, "":
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
}

// GenerateReport 只读聚合，胜率、盈亏比与回撤只统计平仓成交
func (l *Ledger) GenerateReport(userID string, period model.ReportPeriod) (*model.PerformanceReport, error) {
	now := l.clock.Now()
	from, err := periodStart(now, period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = model.PeriodAll
	}

	var trades []model.TradeRecord
	for _, t := range l.Trades(userID) {
		if !t.Timestamp.Before(from) {
			trades = append(trades, t)
		}
	}
	r := computeReport(trades)
	r.UserID = userID
	r.Period = period
	r.From = from
	r.GeneratedAt = now
	return r, nil
}

func computeReport(trades []model.TradeRecord) *model.PerformanceReport {
	r := &model.PerformanceReport{TotalTrades: len(trades)}

	var (
		winSum, lossSum float64
		returns         []float64
		cum, peak, mdd  float64
	)
	for _, t := range trades {
		r.TotalVolume += t.Notional
		if !t.Closing {
			continue
		}
		r.ClosedTrades++
		r.TotalPnL += t.RealizedPnL
		returns = append(returns, t.ReturnPct)
		switch {
		case t.RealizedPnL > 0:
			r.Wins++
			winSum += t.RealizedPnL
		case t.RealizedPnL < 0:
			r.Losses++
			lossSum += -t.RealizedPnL
		}

		// 峰值从 0 开始
		cum += t.RealizedPnL
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > mdd {
			mdd = dd
		}
	}

	if r.ClosedTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.ClosedTrades) * 100
	}
	if r.Wins > 0 {
		r.AvgWin = winSum / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = lossSum / float64(r.Losses)
		r.ProfitFactor = r.AvgWin / r.AvgLoss
	}
	r.SharpeRatio = sharpe(returns)
	r.MaxDrawdown = mdd

	r.WinRate = round(r.WinRate, 2)
	r.AvgWin = round(r.AvgWin, 2)
	r.AvgLoss = round(r.AvgLoss, 2)
	r.ProfitFactor = round(r.ProfitFactor, 2)
	r.SharpeRatio = round(r.SharpeRatio, 2)
	r.MaxDrawdown = round(r.MaxDrawdown, 2)
	r.TotalPnL = round(r.TotalPnL, 2)
	r.TotalVolume = round(r.TotalVolume, 2)
	return r
}

// sharpe 每笔收益率的均值除以标准差，按 252 年化
func sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range returns {
		mean += v
	}
	mean /= float64(n)
	variance := 0.0
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(n))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDays)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
