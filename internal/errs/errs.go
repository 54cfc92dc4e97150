package errs

import (
	"errors"
	"fmt"
)

// ValidationError — плохой вход (сумма <= 0, кривое имя сессии и т.п.).
// Всегда восстановима, в Sentry не уходит.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError — отсутствие строки. Часто легитимное «нечего делать»,
// отличать от настоящей ошибки обязан вызывающий.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConflictError — операция отклонена ДО каких-либо мутаций
// (деактивация текущей сессии, setCurrent несуществующей сессии).
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

func Conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
