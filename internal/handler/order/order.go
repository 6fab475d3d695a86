package order

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/handler"
	"tradeflow/internal/ledger"
	"tradeflow/internal/model"
	"tradeflow/pkg/response"
)

type OrderHandler struct {
	ledger      *ledger.Ledger
	defaultUser string
}

func NewOrderHandler(l *ledger.Ledger, defaultUser string) *OrderHandler {
	return &OrderHandler{ledger: l, defaultUser: defaultUser}
}

// OrderCreate 入队，由后台按优先级依次提交
func (h *OrderHandler) OrderCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.OrderRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, handler.BindErr(err), nil)
			return
		}
		req.UserID = handler.UserID(ctx, h.defaultUser)
		o, err := h.ledger.Enqueue(req)
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, o)
	}
}

func (h *OrderHandler) OrderGetList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, h.ledger.Orders(handler.UserID(ctx, h.defaultUser)))
	}
}

func (h *OrderHandler) OrderGetQueued() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, h.ledger.Queued())
	}
}

func (h *OrderHandler) OrderGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		o, err := h.ledger.Order(ctx.Param("id"))
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, o)
	}
}

func (h *OrderHandler) OrderCancel() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		o, err := h.ledger.Cancel(ctx.Param("id"))
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, o)
	}
}

func (h *OrderHandler) OrderModify() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.OrderModify
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, handler.BindErr(err), nil)
			return
		}
		o, err := h.ledger.Modify(ctx.Param("id"), req)
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, o)
	}
}
