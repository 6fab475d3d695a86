package handler

import (
	"tradeflow/internal/consensus"
	"tradeflow/internal/hub"
	"tradeflow/internal/ledger"
	"tradeflow/internal/pipeline"
	"tradeflow/pkg/errors"
	"tradeflow/pkg/errors/ecode"
	"tradeflow/pkg/validator"
)

// Coded 把领域错误映射为带错误码的错误，供 response.JSON 使用
func Coded(err error) error {
	if err == nil {
		return nil
	}
	var ve *validator.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, ledger.ErrInvalidOrder),
		errors.Is(err, ledger.ErrInvalidPeriod),
		errors.Is(err, consensus.ErrInvalidKey),
		errors.Is(err, consensus.ErrInvalidAction),
		errors.Is(err, hub.ErrUnknownChannel),
		errors.Is(err, pipeline.ErrScoreBelowMinimum),
		errors.Is(err, pipeline.ErrQuantityTooSmall),
		errors.Is(err, pipeline.ErrNonExecutableTrade):
		return errors.Wrap(err, ecode.ValidateErr, "")
	case errors.Is(err, ledger.ErrOrderNotFound),
		errors.Is(err, consensus.ErrSignalNotFound),
		errors.Is(err, pipeline.ErrSignalNotFound):
		return errors.Wrap(err, ecode.NotFoundErr, "")
	case errors.Is(err, ledger.ErrOrderTerminal),
		errors.Is(err, ledger.ErrNotModifiable),
		errors.Is(err, ledger.ErrIllegalTransition),
		errors.Is(err, ledger.ErrOrderInFlight),
		errors.Is(err, pipeline.ErrSignalExpired):
		return errors.Wrap(err, ecode.ConflictErr, "")
	case errors.Is(err, pipeline.ErrDailyCapReached),
		errors.Is(err, pipeline.ErrDispatchQueueFull):
		return errors.Wrap(err, ecode.TooManyRequest, "")
	}
	return errors.Wrap(err, ecode.Unknown, "")
}

// BindErr 参数绑定失败
func BindErr(err error) error {
	return errors.Wrap(err, ecode.ValidateErr, "invalid request")
}
