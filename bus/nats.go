package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/gehhilfe/brokerflux/core"
)

const correlationHeader = "Brokerflux-Correlation-Id"

// NatsTransport implements core.Transport on a NATS connection. Topics map
// to plain subjects, RPC and command queues to queue-group subscriptions
// named after the queue, so each queue has one logical consumer group.
type NatsTransport struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
	failure       core.FailureHandler
}

type TransportOption func(*NatsTransport)

func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *NatsTransport) {
		t.logger = logger
	}
}

func WithFailureHandler(handler core.FailureHandler) TransportOption {
	return func(t *NatsTransport) {
		t.failure = handler
	}
}

func WithSubjectPrefix(prefix string) TransportOption {
	return func(t *NatsTransport) {
		t.subjectPrefix = prefix
	}
}

// Connect dials a NATS server with the given connection parameters.
func Connect(cfg core.Config, opts ...TransportOption) (*NatsTransport, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	natsOpts := []nats.Option{}
	if cfg.Name != "" {
		natsOpts = append(natsOpts, nats.Name(cfg.Name))
	}
	if cfg.User != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.User, cfg.Password))
	}
	if cfg.Token != "" {
		natsOpts = append(natsOpts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}

	t := &NatsTransport{
		nc:     nc,
		logger: slog.Default(),
	}
	if cfg.Logger != nil {
		t.logger = cfg.Logger
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewNatsTransport wraps an existing connection, for callers that manage
// the nats.Conn themselves.
func NewNatsTransport(nc *nats.Conn, opts ...TransportOption) *NatsTransport {
	t := &NatsTransport{
		nc:     nc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// fail routes a delivery-goroutine handler error to the configured failure
// handler, falling back to the diagnostic logger.
func (t *NatsTransport) fail(f core.Failure) {
	if t.failure != nil {
		t.failure(f)
		return
	}
	t.logger.Error("Handler failed", slog.String("source", f.Source), slog.String("subject", f.Subject), slog.Any("error", f.Err))
}

func (t *NatsTransport) sub(subject string) string {
	if t.subjectPrefix == "" {
		return subject
	}
	return fmt.Sprint(t.subjectPrefix, ".", subject)
}

func (t *NatsTransport) Publish(topic string, message []byte) error {
	return mapConnErr(t.nc.Publish(t.sub(topic), message))
}

func (t *NatsTransport) Subscribe(topic string, handler core.Handler) (core.Unsubscriber, error) {
	return t.nc.Subscribe(t.sub(topic), func(m *nats.Msg) {
		if err := handler(m.Data, metadataFromHeader(m.Header)); err != nil {
			t.fail(core.Failure{Source: "global", Subject: topic, Err: err})
		}
	})
}

func (t *NatsTransport) RPCCall(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error) {
	msg := nats.NewMsg(t.sub(queue))
	msg.Data = request
	msg.Header.Set(correlationHeader, uuid.NewString())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := t.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			return nil, fmt.Errorf("%w: %s", core.ErrNoReceiver, queue)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %s after %s", core.ErrTimeout, queue, timeout)
		case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining):
			return nil, fmt.Errorf("%w: %s", core.ErrTransportClosed, queue)
		default:
			return nil, err
		}
	}
	return reply.Data, nil
}

func (t *NatsTransport) EnableRPCServer(queue string, handler core.RPCHandler) (core.Unsubscriber, error) {
	return t.nc.QueueSubscribe(t.sub(queue), queue, func(m *nats.Msg) {
		reply, err := handler(m.Data, metadataFromHeader(m.Header))
		if err != nil {
			// No synthetic reply is sent, the caller runs into its
			// timeout.
			t.fail(core.Failure{Source: "rpc-server", Subject: queue, Err: err})
			return
		}
		if err := m.Respond(reply); err != nil {
			t.fail(core.Failure{Source: "rpc-server", Subject: queue, Err: err})
		}
	})
}

func (t *NatsTransport) SendCommand(queue string, command []byte) error {
	return mapConnErr(t.nc.Publish(t.sub(queue), command))
}

func (t *NatsTransport) CommandQueue(queue string, handler core.Handler) (core.Unsubscriber, error) {
	return t.nc.QueueSubscribe(t.sub(queue), queue, func(m *nats.Msg) {
		if err := handler(m.Data, metadataFromHeader(m.Header)); err != nil {
			t.fail(core.Failure{Source: "command", Subject: queue, Err: err})
		}
	})
}

// Disconnect closes the connection immediately. Pending RPC calls fail
// with core.ErrTransportClosed instead of waiting out their timeout.
func (t *NatsTransport) Disconnect() error {
	t.nc.Close()
	return nil
}

func mapConnErr(err error) error {
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
		return fmt.Errorf("%w: %v", core.ErrTransportClosed, err)
	}
	return err
}

func metadataFromHeader(header nats.Header) core.Metadata {
	metadata := make(core.Metadata, len(header))
	for k, v := range header {
		if len(v) > 0 {
			metadata[k] = v[0]
		}
	}
	return metadata
}
