package portfolio

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"tradeflow/internal/dao"
	"tradeflow/internal/handler"
	"tradeflow/internal/ledger"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/response"
)

type PortfolioHandler struct {
	ledger      *ledger.Ledger
	cache       dao.PortfolioCache // 可选
	defaultUser string
}

func NewPortfolioHandler(l *ledger.Ledger, cache dao.PortfolioCache, defaultUser string) *PortfolioHandler {
	return &PortfolioHandler{ledger: l, cache: cache, defaultUser: defaultUser}
}

// PortfolioGet cached=true 时优先读 redis 快照
func (h *PortfolioHandler) PortfolioGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := handler.UserID(ctx, h.defaultUser)
		if h.cache != nil && cast.ToBool(ctx.Query("cached")) {
			s, err := h.cache.GetPortfolio(ctx.Request.Context(), userID)
			if err != nil {
				logger.Warn("portfolio cache read failed", logger.Pair("user", userID), logger.ErrorField(err))
			} else if s != nil {
				response.JSON(ctx, nil, s)
				return
			}
		}
		response.JSON(ctx, nil, h.ledger.Portfolio(userID))
	}
}

func (h *PortfolioHandler) PositionsGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if cast.ToBool(ctx.Query("mark")) {
			h.ledger.MarkPrices()
		}
		response.JSON(ctx, nil, h.ledger.Positions(handler.UserID(ctx, h.defaultUser)))
	}
}

// TradesGet limit<=0 返回全部
func (h *PortfolioHandler) TradesGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		trades := h.ledger.Trades(handler.UserID(ctx, h.defaultUser))
		if limit := cast.ToInt(ctx.Query("limit")); limit > 0 && len(trades) > limit {
			trades = trades[len(trades)-limit:]
		}
		response.JSON(ctx, nil, trades)
	}
}

func (h *PortfolioHandler) ReportGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		period := model.ReportPeriod(ctx.DefaultQuery("period", string(model.PeriodAll)))
		r, err := h.ledger.GenerateReport(handler.UserID(ctx, h.defaultUser), period)
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, r)
	}
}
