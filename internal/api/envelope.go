package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the wire version carried in every response body.
const EnvelopeVersion = 1

// APIEnvelope wraps successful responses and errors without a code.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIErrorEnvelope wraps coded errors.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps every huma response body in the envelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		if apiErr.Code == "" {
			return &APIEnvelope{Version: EnvelopeVersion, Error: apiErr.Message}, nil
		}
		return &APIErrorEnvelope{
			Version: EnvelopeVersion,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil
	}

	return &APIEnvelope{
		Version: EnvelopeVersion,
		Success: status == "" || strings.HasPrefix(status, "2"),
		Data:    v,
	}, nil
}
