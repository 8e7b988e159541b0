// Package jsonrpc serves the wallet relay API over JSON-RPC 2.0.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lapolinarweb/contracts/internal/account"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ErrorData carries the stable error code of an application error.
type ErrorData struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"traceId,omitempty"`
}

// Standard JSON-RPC 2.0 error codes
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Application error codes
const (
	ErrCodeUnauthorized     = -32001
	ErrCodeResourceNotFound = -32002
	ErrCodeAccountBusy      = -32003
	ErrCodeUnavailable      = -32004

	ErrCodeAuthorization = -32010
	ErrCodePolicy        = -32011
	ErrCodeGovernance    = -32012
	ErrCodeInvariant     = -32013
	ErrCodeEconomic      = -32014
	ErrCodeExecution     = -32015
)

var kindCodes = map[account.Kind]int{
	account.KindAuthorization: ErrCodeAuthorization,
	account.KindPolicy:        ErrCodePolicy,
	account.KindGovernance:    ErrCodeGovernance,
	account.KindInvariant:     ErrCodeInvariant,
	account.KindEconomic:      ErrCodeEconomic,
	account.KindExecution:     ErrCodeExecution,
}

// NewError creates an error without data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error with data.
func NewErrorWithData(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func ErrParseError(message string) *Error {
	return NewError(ErrCodeParse, message)
}

func ErrInvalidRequest(message string) *Error {
	return NewError(ErrCodeInvalidRequest, message)
}

func ErrMethodNotFound(method string) *Error {
	return NewErrorWithData(ErrCodeMethodNotFound, "method not found", method)
}

func ErrInvalidParams(message string) *Error {
	return NewError(ErrCodeInvalidParams, message)
}

func ErrInternal(message string) *Error {
	return NewError(ErrCodeInternal, message)
}

// FromError maps a service error to a JSON-RPC error. Account errors keep
// their exact message; the stable code and kind go in data.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	if accErr, ok := account.AsError(err); ok {
		code, ok := kindCodes[accErr.Kind]
		if !ok {
			code = ErrCodeInternal
		}
		data := ErrorData{Code: accErr.Code, Kind: string(accErr.Kind)}
		if detail := err.Error(); detail != accErr.Message {
			data.Detail = detail
		}
		return NewErrorWithData(code, accErr.Message, data)
	}

	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		data := ErrorData{Code: apiErr.Code}
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			return NewErrorWithData(ErrCodeUnauthorized, apiErr.Message, data)
		case apiErr.StatusCode == http.StatusNotFound:
			return NewErrorWithData(ErrCodeResourceNotFound, apiErr.Message, data)
		case apiErr.Code == apierrors.ErrAccountBusy.Code:
			return NewErrorWithData(ErrCodeAccountBusy, apiErr.Message, data)
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return NewErrorWithData(ErrCodeUnavailable, apiErr.Message, data)
		case apiErr.StatusCode == http.StatusBadRequest:
			return NewErrorWithData(ErrCodeInvalidParams, apiErr.Message, data)
		}
	}

	return NewErrorWithData(ErrCodeInternal, "internal error", ErrorData{Code: apierrors.ErrInternal.Code})
}
