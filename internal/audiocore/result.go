package audiocore

import (
	"fmt"

	"github.com/tphakala/audiostream/internal/errors"
)

// Result is the numeric status reported across the control boundary.
type Result int

const (
	ResultOK                   Result = 0
	ResultErrorDisconnected    Result = -899
	ResultErrorIllegalArgument Result = -898
	ResultErrorInternal        Result = -896
	ResultErrorInvalidState    Result = -895
	ResultErrorUnimplemented   Result = -890
	ResultErrorUnavailable     Result = -889
	ResultErrorNoFreeHandles   Result = -888
	ResultErrorNull            Result = -886
	ResultErrorTimeout         Result = -885
	ResultErrorOutOfRange      Result = -882
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultErrorDisconnected:
		return "ErrorDisconnected"
	case ResultErrorIllegalArgument:
		return "ErrorIllegalArgument"
	case ResultErrorInternal:
		return "ErrorInternal"
	case ResultErrorInvalidState:
		return "ErrorInvalidState"
	case ResultErrorUnimplemented:
		return "ErrorUnimplemented"
	case ResultErrorUnavailable:
		return "ErrorUnavailable"
	case ResultErrorNoFreeHandles:
		return "ErrorNoFreeHandles"
	case ResultErrorNull:
		return "ErrorNull"
	case ResultErrorTimeout:
		return "ErrorTimeout"
	case ResultErrorOutOfRange:
		return "ErrorOutOfRange"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ResultOf maps an error to its Result. A nil error is ResultOK.
func ResultOf(err error) Result {
	if err == nil {
		return ResultOK
	}

	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return ResultErrorInternal
	}

	switch ee.Category {
	case errors.CategoryValidation:
		return ResultErrorOutOfRange
	case errors.CategoryLimit:
		return ResultErrorNoFreeHandles
	case errors.CategoryState:
		return ResultErrorInvalidState
	case errors.CategoryNotFound:
		return ResultErrorNull
	case errors.CategoryDisconnected:
		return ResultErrorDisconnected
	case errors.CategoryTimeout:
		return ResultErrorTimeout
	case errors.CategoryUnimplemented:
		return ResultErrorUnimplemented
	case errors.CategoryAudioBackend:
		return ResultErrorUnavailable
	default:
		return ResultErrorInternal
	}
}
