package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/infrastructure/resilience"
)

// classifyOllamaError decides which failures are worth retrying. Connection
// problems and overload statuses are transient; 4xx responses mean the request
// itself is wrong and retrying would only repeat the mistake.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	// Unknown transport-level failures count against the breaker but are
	// retried once the backoff allows.
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

// wrapTemporaryIfNeeded tags retry-worthy failures as temporary so upstream
// layers can map them to a 503 instead of a generic 500.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "ollama."+operation, err)
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "ollama."+operation, err)
	}
	return err
}
