package consensus

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/consensus"
	"tradeflow/internal/handler"
	"tradeflow/internal/model"
	"tradeflow/pkg/errors"
	"tradeflow/pkg/errors/ecode"
	"tradeflow/pkg/response"
)

type ConsensusHandler struct {
	tracker *consensus.Tracker
}

func NewConsensusHandler(tracker *consensus.Tracker) *ConsensusHandler {
	return &ConsensusHandler{tracker: tracker}
}

// ConsensusUpdate 接收上游共识更新
func (h *ConsensusHandler) ConsensusUpdate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req model.ConsensusUpdateReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, handler.BindErr(err), nil)
			return
		}
		st, err := h.tracker.UpdateConsensus(req.DebateID, req.Symbol, req.Action, req.Score, req.Factors, req.Votes)
		if err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, st)
	}
}

func (h *ConsensusHandler) ConsensusGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		st, ok := h.tracker.State(ctx.Param("debate"), ctx.Param("symbol"))
		if !ok {
			response.JSON(ctx, errors.WithCode(ecode.NotFoundErr, "consensus state not found"), nil)
			return
		}
		response.JSON(ctx, nil, st)
	}
}

// ConsensusList 某个辩论下全部标的的共识
func (h *ConsensusHandler) ConsensusList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, h.tracker.States(ctx.Param("debate")))
	}
}

func (h *ConsensusHandler) DebateClear() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		n := h.tracker.ClearDebate(ctx.Param("debate"))
		response.JSON(ctx, nil, gin.H{"cleared": n})
	}
}
