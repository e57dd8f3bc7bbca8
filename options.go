package brokerflux

import (
	"log/slog"
	"time"

	"github.com/gehhilfe/brokerflux/core"
)

type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithRPCTimeout sets the default bound on RPC reply waits. A non-zero
// core.Config.RPCTimeout passed to Start takes precedence.
func WithRPCTimeout(timeout time.Duration) Option {
	return func(b *Broker) {
		b.rpcTimeout = timeout
	}
}

// WithDialer replaces how Start constructs the transport client.
func WithDialer(dial Dialer) Option {
	return func(b *Broker) {
		b.dial = dial
	}
}

// WithFailureHandler receives handler errors raised on transport delivery
// goroutines, where no caller is left to return them to.
func WithFailureHandler(handler core.FailureHandler) Option {
	return func(b *Broker) {
		b.failure = handler
	}
}

// WithJournal records every accepted global publish and command send to a
// bbolt file at path.
func WithJournal(path string) Option {
	return func(b *Broker) {
		b.journalPath = path
	}
}

// WithVerboseTransport logs every transport operation and delivery.
func WithVerboseTransport() Option {
	return func(b *Broker) {
		b.verbose = true
	}
}
