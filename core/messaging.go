package core

import (
	"context"
	"log/slog"
	"time"
)

type Metadata map[string]string

type UnsubscribeFunc func() error

func (u UnsubscribeFunc) Unsubscribe() error {
	return u()
}

type Unsubscriber interface {
	Unsubscribe() error
}

// Handler consumes one message and produces nothing but an error. Used for
// pub/sub subscriptions and command queue consumers.
type Handler func(message []byte, metadata Metadata) error

// RPCHandler consumes one request and must produce a reply for it.
type RPCHandler func(request []byte, metadata Metadata) ([]byte, error)

// Config carries the connection parameters handed to a transport dialer.
type Config struct {
	// URL of the transport server. Empty means the transport's default.
	URL string

	// Name identifies this client to the transport server.
	Name string

	User     string
	Password string
	Token    string

	// RPCTimeout bounds the wait for an RPC reply. Zero means the
	// broker's configured default.
	RPCTimeout time.Duration

	// Logger is an optional diagnostic sink for the transport itself.
	Logger *slog.Logger
}

// Transport is the capability contract every transport client must satisfy.
// Delivery runs on transport-owned goroutines; only RPCCall blocks the
// caller.
type Transport interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler Handler) (Unsubscriber, error)
	RPCCall(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error)
	EnableRPCServer(queue string, handler RPCHandler) (Unsubscriber, error)
	SendCommand(queue string, command []byte) error
	CommandQueue(queue string, handler Handler) (Unsubscriber, error)
	Disconnect() error
}

// Failure describes a handler error raised on a transport delivery
// goroutine, where the original publisher has already returned.
type Failure struct {
	Source  string // "global", "command" or "rpc-server"
	Subject string
	Err     error
}

type FailureHandler func(Failure)
