// Package common — errors.go определяет типизированные ошибки ядра.
// Каждый тип ошибки — отдельный "вид" (kind): обработчики верхнего уровня
// сравнивают их через errors.Is и решают, какой код ответа отдать клиенту.
package common

import (
	"errors"
	"fmt"
	"net/http"
)

//region ValidationError

// ValidationError — некорректный или отсутствующий входной параметр.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

//endregion

//region NotFoundError

// NotFoundError — неизвестный кейс, пользователь, лобби или предмет.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

//endregion

//region ForbiddenError

// ForbiddenError — участник не имеет права на действие с лобби.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string {
	return e.Msg
}

func (e *ForbiddenError) Is(target error) bool {
	_, ok := target.(*ForbiddenError)
	return ok
}

//endregion

//region UpgradeBlockedError

// UpgradeBlockedError — запрошенный множитель даёт шанс выше жёсткого потолка.
type UpgradeBlockedError struct {
	Msg string
}

func (e *UpgradeBlockedError) Error() string {
	return e.Msg
}

func (e *UpgradeBlockedError) Is(target error) bool {
	_, ok := target.(*UpgradeBlockedError)
	return ok
}

//endregion

//region ResolveFailedError

// ResolveFailedError — резолвер нарушил контракт (число раундов не совпало).
type ResolveFailedError struct {
	Msg string
}

func (e *ResolveFailedError) Error() string {
	return e.Msg
}

func (e *ResolveFailedError) Is(target error) bool {
	_, ok := target.(*ResolveFailedError)
	return ok
}

//endregion

//region ConflictError

// ConflictError — лобби уже ушло дальше ожидаемого состояния.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

//endregion

//region InsufficientBalanceError

// InsufficientBalanceError — на балансе недостаточно USDT.
type InsufficientBalanceError struct {
	Msg string
}

func (e *InsufficientBalanceError) Error() string {
	return e.Msg
}

func (e *InsufficientBalanceError) Is(target error) bool {
	_, ok := target.(*InsufficientBalanceError)
	return ok
}

//endregion

// Образцы для errors.Is: errors.Is(err, common.ErrNotFound).
var (
	ErrValidation          = &ValidationError{}
	ErrNotFound            = &NotFoundError{}
	ErrForbidden           = &ForbiddenError{}
	ErrUpgradeBlocked      = &UpgradeBlockedError{}
	ErrResolveFailed       = &ResolveFailedError{}
	ErrConflict            = &ConflictError{}
	ErrInsufficientBalance = &InsufficientBalanceError{}
)

// ErrHostCannotStartPvp — хост не может запустить PVP-бой сам с собой.
var ErrHostCannotStartPvp = &ConflictError{Msg: "хост не может запустить PVP-бой сам"}

// ErrFeatureDisabled — функция выключена флагом в конфигурации.
var ErrFeatureDisabled = errors.New("функция временно отключена")

// Validation создаёт ValidationError с форматированным сообщением.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFound создаёт NotFoundError.
func NotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// Forbidden создаёт ForbiddenError.
func Forbidden(format string, args ...any) error {
	return &ForbiddenError{Msg: fmt.Sprintf(format, args...)}
}

// Conflict создаёт ConflictError.
func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus сопоставляет вид ошибки коду HTTP для внешнего слоя.
// Всё, что не распознано (ошибки хранилища, резолвера), — 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpgradeBlocked):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
