package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/model"
)

func TestTradeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	rec := model.TradeRecord{
		ID: "t1", OrderID: "o1", UserID: "u", Symbol: "AAPL", Side: model.Sell,
		Quantity: 5, Price: 110, Notional: 550, RealizedPnL: 50, ReturnPct: 10, Closing: true,
		SignalID: "s1", Timestamp: ts,
	}
	assert.Equal(t, rec, tradeFromEntity(*tradeToEntity(rec)))
}

func TestPositionFromEntityDerivesSide(t *testing.T) {
	p := model.Position{UserID: "u", Symbol: "TSLA", Quantity: -3, AvgEntryPrice: 200, CostBasis: -600, MarketPrice: 210}
	got := positionFromEntity(*positionToEntity(p))
	assert.Equal(t, model.PositionShort, got.Side)
	assert.Equal(t, -600.0, got.CostBasis)
	assert.Zero(t, got.MarketPrice)
}

func TestExecutionJSONColumns(t *testing.T) {
	res := &model.ExecutionResult{
		SignalID: "s1", Symbol: "NVDA", Action: model.ActionBuy, Status: model.ExecPartial,
		OrderIDs: []string{"o1", "o2"}, Conditions: []string{"urgency high"}, Slices: 2,
	}
	e, err := executionToEntity(res)
	require.NoError(t, err)
	assert.JSONEq(t, `["o1","o2"]`, string(e.OrderIDs))

	back, err := executionFromEntity(*e)
	require.NoError(t, err)
	assert.Equal(t, res.OrderIDs, back.OrderIDs)
	assert.Equal(t, res.Conditions, back.Conditions)
	assert.Equal(t, model.ExecPartial, back.Status)
}

func TestExecutionNilSlicesStoredAsEmptyArrays(t *testing.T) {
	e, err := executionToEntity(&model.ExecutionResult{SignalID: "s"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(e.OrderIDs))
	assert.Equal(t, "[]", string(e.Conditions))
}

func TestPortfolioKey(t *testing.T) {
	assert.Equal(t, "portfolio:alice", portfolioKey("alice"))
}
