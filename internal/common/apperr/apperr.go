package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Error codes
// ============================================================

// Code - машиночитаемый код ошибки, уходит клиенту в поле "code".
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeUnknownObject      Code = "UNKNOWN_OBJECT"
	CodeDegenerateViewport Code = "DEGENERATE_VIEWPORT"
	CodeAssetUnavailable   Code = "ASSET_UNAVAILABLE"
	CodePersistence        Code = "PERSISTENCE_FAILED"
	CodeHubUnavailable     Code = "HUB_UNAVAILABLE"
	CodeNetwork            Code = "NETWORK_ERROR"
	CodeMalformedData      Code = "MALFORMED_DATA"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error - ошибка с кодом и необязательной причиной.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is проверяет код по всей цепочке обёрток.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode возвращает код или "" для чужих ошибок.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage - текст без префикса кода.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus сопоставляет коду HTTP-статус ответа.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeMalformedData, CodeDegenerateViewport:
		return fiber.StatusBadRequest
	case CodeNotFound, CodeUnknownObject:
		return fiber.StatusNotFound
	case CodeAlreadyExists:
		return fiber.StatusConflict
	case CodeAssetUnavailable:
		return fiber.StatusUnprocessableEntity
	case CodeHubUnavailable, CodeNetwork:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// StatusOf - HTTPStatus для произвольной ошибки.
func StatusOf(err error) int {
	return HTTPStatus(GetCode(err))
}
