package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model（各モジュール共通） =====
// クリアランス系のエラーはパッケージ境界をまたぐのでここに集約する

type Code string

const (
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeConflict             Code = "CONFLICT"
	CodeDuplicateRequest     Code = "DUPLICATE_REQUEST"
	CodeIneligible           Code = "INELIGIBLE"
	CodeMissingReviewNotes   Code = "MISSING_REVIEW_NOTES"
	CodeAlreadyDecided       Code = "ALREADY_DECIDED"
	CodeNotApproved          Code = "NOT_APPROVED"
	CodeIncompleteEvaluation Code = "INCOMPLETE_EVALUATION"
	CodeInternal             Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// ブロッカー一覧など、コード別の付帯情報
	Details any `json:"details,omitempty"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func New(code Code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func (e *APIError) WithDetails(d any) *APIError {
	e.Details = d
	return e
}

func ErrUnauthorized(msg string) *APIError { return New(CodeUnauthorized, msg) }
func ErrForbidden(msg string) *APIError    { return New(CodeForbidden, msg) }
func ErrNotFound(msg string) *APIError     { return New(CodeNotFound, msg) }
func ErrInvalid(msg string) *APIError      { return New(CodeInvalidArgument, msg) }
func ErrConflict(msg string) *APIError     { return New(CodeConflict, msg) }
func ErrInternal(msg string) *APIError     { return New(CodeInternal, msg) }

// CodeOf: エラーからコードを取り出す（非APIErrorは INTERNAL 扱い）
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

// Payload: ハンドラ共通のエラーレスポンス形 {"error": {code, message, details}}
func Payload(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return map[string]any{"error": api}
	}
	return map[string]any{"error": New(CodeInternal, err.Error())}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if !errors.As(err, &api) {
		return http.StatusInternalServerError
	}
	switch api.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument, CodeMissingReviewNotes:
		return http.StatusBadRequest
	case CodeConflict, CodeDuplicateRequest, CodeAlreadyDecided, CodeNotApproved:
		return http.StatusConflict
	case CodeIneligible:
		return http.StatusUnprocessableEntity
	case CodeIncompleteEvaluation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
