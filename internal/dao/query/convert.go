package query

import (
	"github.com/goccy/go-json"
	"gorm.io/datatypes"

	"tradeflow/internal/model"
	"tradeflow/internal/model/entity"
)

func tradeToEntity(rec model.TradeRecord) *entity.TradeRecord {
	return &entity.TradeRecord{
		ID:          rec.ID,
		OrderID:     rec.OrderID,
		UserID:      rec.UserID,
		Symbol:      rec.Symbol,
		Side:        string(rec.Side),
		Quantity:    rec.Quantity,
		Price:       rec.Price,
		Notional:    rec.Notional,
		RealizedPnL: rec.RealizedPnL,
		ReturnPct:   rec.ReturnPct,
		Closing:     rec.Closing,
		SignalID:    rec.SignalID,
		Timestamp:   rec.Timestamp,
	}
}

func tradeFromEntity(e entity.TradeRecord) model.TradeRecord {
	return model.TradeRecord{
		ID:          e.ID,
		OrderID:     e.OrderID,
		UserID:      e.UserID,
		Symbol:      e.Symbol,
		Side:        model.OrderSide(e.Side),
		Quantity:    e.Quantity,
		Price:       e.Price,
		Notional:    e.Notional,
		RealizedPnL: e.RealizedPnL,
		ReturnPct:   e.ReturnPct,
		Closing:     e.Closing,
		SignalID:    e.SignalID,
		Timestamp:   e.Timestamp,
	}
}

func positionToEntity(p model.Position) *entity.PositionSnapshot {
	return &entity.PositionSnapshot{
		UserID:        p.UserID,
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		CostBasis:     p.CostBasis,
		RealizedPnL:   p.RealizedPnL,
		UpdatedAt:     p.UpdatedAt,
	}
}

// 市价字段不落库，恢复后由价格簿重新标记
func positionFromEntity(e entity.PositionSnapshot) model.Position {
	return model.Position{
		UserID:        e.UserID,
		Symbol:        e.Symbol,
		Quantity:      e.Quantity,
		Side:          model.SideOf(e.Quantity),
		AvgEntryPrice: e.AvgEntryPrice,
		CostBasis:     e.CostBasis,
		RealizedPnL:   e.RealizedPnL,
		UpdatedAt:     e.UpdatedAt,
	}
}

func executionToEntity(res *model.ExecutionResult) (*entity.SignalExecution, error) {
	orderIDs, err := json.Marshal(nonNil(res.OrderIDs))
	if err != nil {
		return nil, err
	}
	conditions, err := json.Marshal(nonNil(res.Conditions))
	if err != nil {
		return nil, err
	}
	return &entity.SignalExecution{
		SignalID:       res.SignalID,
		Symbol:         res.Symbol,
		Action:         string(res.Action),
		Status:         string(res.Status),
		Stealth:        res.Stealth,
		EstimatedValue: res.EstimatedValue,
		TotalQuantity:  res.TotalQuantity,
		FilledQuantity: res.FilledQuantity,
		AvgFillPrice:   res.AvgFillPrice,
		Slices:         res.Slices,
		OrderIDs:       datatypes.JSON(orderIDs),
		Conditions:     datatypes.JSON(conditions),
		Message:        res.Message,
		StartedAt:      res.StartedAt,
		CompletedAt:    res.CompletedAt,
	}, nil
}

func executionFromEntity(e entity.SignalExecution) (*model.ExecutionResult, error) {
	res := &model.ExecutionResult{
		SignalID:       e.SignalID,
		Symbol:         e.Symbol,
		Action:         model.Action(e.Action),
		Status:         model.ExecutionStatus(e.Status),
		Stealth:        e.Stealth,
		EstimatedValue: e.EstimatedValue,
		TotalQuantity:  e.TotalQuantity,
		FilledQuantity: e.FilledQuantity,
		AvgFillPrice:   e.AvgFillPrice,
		Slices:         e.Slices,
		Message:        e.Message,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
	}
	if len(e.OrderIDs) > 0 {
		if err := json.Unmarshal(e.OrderIDs, &res.OrderIDs); err != nil {
			return nil, err
		}
	}
	if len(e.Conditions) > 0 {
		if err := json.Unmarshal(e.Conditions, &res.Conditions); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
