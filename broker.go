// Package brokerflux unifies distributed pub/sub, RPC and command delivery
// over an external message transport with ordered in-process pub/sub behind
// one broker facade.
package brokerflux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gehhilfe/brokerflux/bus"
	"github.com/gehhilfe/brokerflux/core"
	"github.com/gehhilfe/brokerflux/store/bolt"
)

const defaultRPCTimeout = 5 * time.Second

// Dialer constructs a transport client from connection parameters.
type Dialer func(cfg core.Config) (core.Transport, error)

// Broker is the facade over one transport connection and one local
// registry. Every operation except Start fails with core.ErrInactive
// while the broker is not running.
type Broker struct {
	mu      sync.RWMutex
	running bool

	logger      *slog.Logger
	rpcTimeout  time.Duration
	failure     core.FailureHandler
	dial        Dialer
	verbose     bool
	journalPath string

	transport core.Transport
	local     *bus.LocalBus
	global    *globalChannel
	rpc       *rpcGateway
	commands  *commandChannel
	journal   *bolt.Journal
}

func New(opts ...Option) *Broker {
	b := &Broker{
		logger:     slog.Default(),
		rpcTimeout: defaultRPCTimeout,
	}
	b.failure = func(f core.Failure) {
		b.logger.Error("Handler failed", slog.String("source", f.Source), slog.String("subject", f.Subject), slog.Any("error", f.Err))
	}
	b.dial = func(cfg core.Config) (core.Transport, error) {
		if cfg.Logger == nil {
			cfg.Logger = b.logger
		}
		return bus.Connect(cfg, bus.WithFailureHandler(func(f core.Failure) { b.failure(f) }))
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start dials the transport and activates the broker. Starting an already
// running broker fails with core.ErrAlreadyStarted; the live connection is
// never silently replaced.
func (b *Broker) Start(cfg core.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return core.ErrAlreadyStarted
	}

	b.logger.Info("Broker starting", slog.String("url", cfg.URL))

	if cfg.RPCTimeout > 0 {
		b.rpcTimeout = cfg.RPCTimeout
	}

	transport, err := b.dial(cfg)
	if err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	if b.verbose {
		transport = bus.NewTransportLogger(transport, b.logger)
	}

	var journal *bolt.Journal
	if b.journalPath != "" {
		journal, err = bolt.NewJournal(b.journalPath)
		if err != nil {
			transport.Disconnect()
			return fmt.Errorf("start broker: open journal: %w", err)
		}
	}

	b.transport = transport
	b.journal = journal
	b.local = bus.NewLocalBus()
	b.global = &globalChannel{transport: transport, journal: journal, logger: b.logger}
	// Every broker can issue RPC calls, no separate arming step exists.
	b.rpc = newRPCGateway(transport, b.rpcTimeout)
	b.commands = &commandChannel{transport: transport, journal: journal, logger: b.logger}
	b.running = true

	b.logger.Info("Broker started")
	return nil
}

// Stop disconnects the transport, interrupting pending RPC calls and
// delivery loops, and deactivates the broker.
func (b *Broker) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return core.ErrInactive
	}

	b.logger.Info("Broker stopping")

	if b.journal != nil {
		if err := b.journal.Close(); err != nil {
			b.logger.Error("Failed to close journal", slog.Any("error", err))
		}
	}
	err := b.transport.Disconnect()

	b.running = false
	b.transport = nil
	b.journal = nil
	b.local = nil
	b.global = nil
	b.rpc = nil
	b.commands = nil

	return err
}

// SubscribeLocal registers handler for in-process delivery on topic.
// Repeated subscriptions accumulate in order.
func (b *Broker) SubscribeLocal(topic string, handler core.Handler) (core.Unsubscriber, error) {
	b.mu.RLock()
	local, running := b.local, b.running
	b.mu.RUnlock()
	if !running {
		return nil, core.ErrInactive
	}

	b.logger.Debug("Subscribe local", slog.String("topic", topic))
	return local.Subscribe(topic, handler)
}

// PublishLocal delivers message synchronously to every local subscriber of
// topic, in subscription order, on the caller's goroutine.
func (b *Broker) PublishLocal(topic string, message []byte) error {
	b.mu.RLock()
	local, running := b.local, b.running
	b.mu.RUnlock()
	if !running {
		return core.ErrInactive
	}

	b.logger.Debug("Publish local", slog.String("topic", topic))
	return local.Publish(topic, message)
}

// SubscribeGlobal registers handler for messages published to topic by any
// process sharing the transport.
func (b *Broker) SubscribeGlobal(topic string, handler core.Handler) (core.Unsubscriber, error) {
	b.mu.RLock()
	global, running := b.global, b.running
	b.mu.RUnlock()
	if !running {
		return nil, core.ErrInactive
	}

	b.logger.Debug("Subscribe global", slog.String("topic", topic))
	return global.subscribe(topic, handler)
}

// PublishGlobal hands message to the transport for delivery to topic.
// It returns once the transport accepts the send.
func (b *Broker) PublishGlobal(topic string, message []byte) error {
	b.mu.RLock()
	global, running := b.global, b.running
	b.mu.RUnlock()
	if !running {
		return core.ErrInactive
	}

	b.logger.Debug("Publish global", slog.String("topic", topic))
	return global.publish(topic, message)
}

// EnableRPCServer serves RPC requests sent to queue with handler. At most
// one server per queue name per broker.
func (b *Broker) EnableRPCServer(queue string, handler core.RPCHandler) (core.Unsubscriber, error) {
	b.mu.RLock()
	rpc, running := b.rpc, b.running
	b.mu.RUnlock()
	if !running {
		return nil, core.ErrInactive
	}

	b.logger.Debug("Enable rpc server", slog.String("queue", queue))
	return rpc.enableServer(queue, handler)
}

// RPCCall sends message to the receiver queue and blocks until a correlated
// reply arrives, ctx is done, or the configured timeout elapses.
func (b *Broker) RPCCall(ctx context.Context, receiver string, message []byte) ([]byte, error) {
	b.mu.RLock()
	rpc, running := b.rpc, b.running
	b.mu.RUnlock()
	if !running {
		return nil, core.ErrInactive
	}

	return rpc.call(ctx, receiver, message)
}

// DeclareCommandQueue consumes commands sent to queue with handler. One
// logical consumer group per queue.
func (b *Broker) DeclareCommandQueue(queue string, handler core.Handler) (core.Unsubscriber, error) {
	b.mu.RLock()
	commands, running := b.commands, b.running
	b.mu.RUnlock()
	if !running {
		return nil, core.ErrInactive
	}

	b.logger.Debug("Declare command queue", slog.String("queue", queue))
	return commands.declare(queue, handler)
}

// SendCommand fires command at queue without awaiting acknowledgement.
func (b *Broker) SendCommand(queue string, command []byte) error {
	b.mu.RLock()
	commands, running := b.commands, b.running
	b.mu.RUnlock()
	if !running {
		return core.ErrInactive
	}

	b.logger.Debug("Send command", slog.String("queue", queue))
	return commands.send(queue, command)
}
