package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
)

// classifyError maps a provider failure onto the domain error taxonomy.
// Status codes drive the mapping; everything unrecognized becomes a generic
// API error so no provider failure is ever swallowed.
func classifyError(err error, op string) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindRequestTimeout, "OPENAI_TIMEOUT_ERROR",
			"request to the completion service timed out").Wrap(err).With("operation", op)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.New(apperr.KindInvalidCredentials, "OPENAI_KEY_ERROR",
				"invalid API key").Wrap(err).With("operation", op)
		case http.StatusTooManyRequests:
			return apperr.New(apperr.KindQuotaExceeded, "OPENAI_QUOTA_EXCEEDED",
				"completion service quota exceeded").Wrap(err).With("operation", op)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return apperr.New(apperr.KindRequestTimeout, "OPENAI_TIMEOUT_ERROR",
				"request to the completion service timed out").Wrap(err).With("operation", op)
		default:
			return apperr.New(apperr.KindAPIError, "OPENAI_API_ERROR",
				"completion service error").Wrap(err).
				With("operation", op).With("status_code", apiErr.StatusCode)
		}
	}

	return apperr.New(apperr.KindAPIError, "OPENAI_API_ERROR",
		"completion service error").Wrap(err).With("operation", op)
}
