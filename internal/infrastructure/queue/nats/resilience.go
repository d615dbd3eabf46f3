package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/infrastructure/resilience"
)

// transientNATSErrors clear up once the client reconnects.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// rejectedNATSErrors mean the reindex message or subject is unusable. They
// are not the broker's fault and do not count against the breaker.
var rejectedNATSErrors = []error{
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
	nats.ErrInvalidMsg,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), matchesAny(err, transientNATSErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case matchesAny(err, rejectedNATSErrors):
		return resilience.ErrorClassification{}
	default:
		// includes a closed connection, which never comes back
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapTemporaryIfNeeded marks broker outages as ErrTemporary so the admin
// endpoint can answer 503 instead of 500.
func wrapTemporaryIfNeeded(op string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) || classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}
