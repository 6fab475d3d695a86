package errors

import (
	stderrors "errors"
	"fmt"

	"tradeflow/pkg/errors/ecode"
)

// codeError 携带业务错误码的错误
type codeError struct {
	code int
	msg  string
	err  error
}

func (e *codeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

func (e *codeError) Unwrap() error { return e.err }

func (e *codeError) Code() int { return e.code }

func New(text string) error {
	return stderrors.New(text)
}

// WithCode 创建带错误码的错误
func WithCode(code int, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &codeError{code: code, msg: msg}
}

// Wrap 给已有错误附加错误码与描述，err 为 nil 时返回 nil
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &codeError{code: code, msg: msg, err: err}
}

// DecodeErr 解析出错误码和提示信息
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var ce *codeError
	if stderrors.As(err, &ce) {
		return ce.code, ce.Error()
	}
	return ecode.Unknown, err.Error()
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
