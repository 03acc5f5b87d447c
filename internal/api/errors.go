package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/store"
)

// APIError is the error body every route returns. It implements
// huma.StatusError.
type APIError struct { //nolint:revive // matches the envelope naming
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(string) string { return "application/json" }

// translate maps a known error type to an APIError. It returns nil for
// anything it does not recognize.
func translate(err error) *APIError {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return &APIError{
			status:  domainErr.HTTPStatus(),
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		status := storeErr.HTTPCode()
		return &APIError{status: status, Code: statusToCode(status), Message: http.StatusText(status)}
	}

	switch {
	case pokeapi.IsNotFound(err):
		return &APIError{status: http.StatusNotFound, Code: string(domainerrors.CodeNotFound), Message: "Not found upstream"}
	case pokeapi.IsNetworkFailure(err):
		return &APIError{status: http.StatusBadGateway, Code: string(domainerrors.CodeNetworkFailure), Message: "Remote source unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{status: http.StatusGatewayTimeout, Code: string(domainerrors.CodeNetworkFailure), Message: "Request timed out"}
	}
	return nil
}

// RegisterErrorHandler routes every huma error through translate. Call it
// after creating the huma.API and before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		var details []string
		for _, err := range errs {
			if err == nil {
				continue
			}
			if apiErr := translate(err); apiErr != nil {
				return apiErr
			}
			// Request validation failures arrive as *huma.ErrorDetail.
			details = append(details, err.Error())
		}

		apiErr := &APIError{status: status, Code: statusToCode(status), Message: message}
		if len(details) > 0 && status < http.StatusInternalServerError {
			apiErr.Details = details
		}
		return apiErr
	}
}

func statusToCode(status int) string {
	var code domainerrors.Code
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = domainerrors.CodeValidation
	case http.StatusUnauthorized:
		code = domainerrors.CodeUnauthorized
	case http.StatusNotFound:
		code = domainerrors.CodeNotFound
	case http.StatusConflict:
		code = domainerrors.CodeAlreadyExists
	case http.StatusTooManyRequests:
		code = domainerrors.CodeRateLimited
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		code = domainerrors.CodeNetworkFailure
	default:
		code = domainerrors.CodeInternal
	}
	return string(code)
}
