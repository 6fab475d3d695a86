package signal

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/consensus"
	"tradeflow/internal/handler"
	"tradeflow/internal/model"
	"tradeflow/internal/pipeline"
	"tradeflow/pkg/errors"
	"tradeflow/pkg/errors/ecode"
	"tradeflow/pkg/response"
)

type SignalHandler struct {
	tracker  *consensus.Tracker
	pipeline *pipeline.Pipeline
}

func NewSignalHandler(tracker *consensus.Tracker, p *pipeline.Pipeline) *SignalHandler {
	return &SignalHandler{tracker: tracker, pipeline: p}
}

// SignalGetList 待执行的信号
func (sh *SignalHandler) SignalGetList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, sh.tracker.PendingSignals())
	}
}

func (sh *SignalHandler) SignalGetHeld() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, sh.pipeline.Held())
	}
}

// ExecuteSignal 同步执行，需要人工确认时返回 HITLRequired 错误码和结果
func (sh *SignalHandler) ExecuteSignal() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := sh.pipeline.ExecuteSignal(ctx.Request.Context(), ctx.Param("id"))
		respond(ctx, res, err)
	}
}

func (sh *SignalHandler) ApproveSignal() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res, err := sh.pipeline.Approve(ctx.Request.Context(), ctx.Param("id"))
		respond(ctx, res, err)
	}
}

func (sh *SignalHandler) RejectSignal() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := sh.pipeline.Reject(ctx.Param("id")); err != nil {
			response.JSON(ctx, handler.Coded(err), nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"signal_id": ctx.Param("id"), "status": "rejected"})
	}
}

func respond(ctx *gin.Context, res *model.ExecutionResult, err error) {
	if err != nil {
		response.JSON(ctx, handler.Coded(err), nil)
		return
	}
	if res.Status == model.ExecHITLRequired {
		response.JSON(ctx, errors.WithCode(ecode.HITLRequired, res.Message), res)
		return
	}
	response.JSON(ctx, nil, res)
}
