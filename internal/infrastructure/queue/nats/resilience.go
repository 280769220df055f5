package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/secguide/internal/infrastructure/resilience"
)

// classifyNATSError retries while the connection is down or reconnecting.
// Anything else, such as an invalid subject, is a bug on our side.
var classifyNATSError = resilience.Classify(func(err error) resilience.ErrorClassification {
	for _, transient := range []error{nats.ErrNoServers, nats.ErrTimeout, nats.ErrConnectionClosed, nats.ErrDisconnected, nats.ErrConnectionReconnecting} {
		if errors.Is(err, transient) {
			return resilience.Transient
		}
	}
	return resilience.Failure
})

func wrapTemporaryIfNeeded(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}
