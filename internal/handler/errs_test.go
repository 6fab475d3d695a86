package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"tradeflow/internal/ledger"
	"tradeflow/internal/pipeline"
	"tradeflow/pkg/errors"
	"tradeflow/pkg/errors/ecode"
)

func TestCoded(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: o-1", ledger.ErrOrderNotFound):      ecode.NotFoundErr,
		fmt.Errorf("%w: s-1", pipeline.ErrSignalNotFound):   ecode.NotFoundErr,
		ledger.ErrOrderTerminal:                             ecode.ConflictErr,
		fmt.Errorf("%w: o-2", ledger.ErrOrderInFlight):      ecode.ConflictErr,
		fmt.Errorf("%w: late", pipeline.ErrSignalExpired):   ecode.ConflictErr,
		fmt.Errorf("%w: 5/5", pipeline.ErrDailyCapReached):  ecode.TooManyRequest,
		fmt.Errorf("%w: qty", ledger.ErrInvalidOrder):       ecode.ValidateErr,
		fmt.Errorf("%w: 50", pipeline.ErrScoreBelowMinimum): ecode.ValidateErr,
		errors.New("boom"):                                  ecode.Unknown,
	}
	for err, want := range cases {
		code, msg := errors.DecodeErr(Coded(err))
		assert.Equal(t, want, code, err.Error())
		assert.Equal(t, err.Error(), msg)
	}
	assert.NoError(t, Coded(nil))
}
