package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/gehhilfe/brokerflux/core"
)

// TransportLogger logs every transport operation and delivery before
// delegating to the wrapped transport.
type TransportLogger struct {
	transport core.Transport
	logger    *slog.Logger
}

func NewTransportLogger(
	transport core.Transport,
	logger *slog.Logger,
) *TransportLogger {
	return &TransportLogger{
		transport: transport,
		logger:    logger,
	}
}

func (t *TransportLogger) Publish(topic string, message []byte) error {
	t.logger.Info("Publishing message", slog.String("topic", topic), slog.Int("bytes", len(message)))
	return t.transport.Publish(topic, message)
}

func (t *TransportLogger) Subscribe(topic string, handler core.Handler) (core.Unsubscriber, error) {
	return t.transport.Subscribe(topic, func(message []byte, metadata core.Metadata) error {
		t.logger.Info("Received message", slog.String("topic", topic), slog.Int("bytes", len(message)), slog.Any("metadata", metadata))
		return handler(message, metadata)
	})
}

func (t *TransportLogger) RPCCall(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error) {
	t.logger.Info("RPC call", slog.String("queue", queue), slog.Int("bytes", len(request)))
	reply, err := t.transport.RPCCall(ctx, queue, request, timeout)
	if err != nil {
		t.logger.Info("RPC call failed", slog.String("queue", queue), slog.Any("error", err))
		return nil, err
	}
	return reply, nil
}

func (t *TransportLogger) EnableRPCServer(queue string, handler core.RPCHandler) (core.Unsubscriber, error) {
	return t.transport.EnableRPCServer(queue, func(request []byte, metadata core.Metadata) ([]byte, error) {
		t.logger.Info("RPC request", slog.String("queue", queue), slog.Int("bytes", len(request)))
		return handler(request, metadata)
	})
}

func (t *TransportLogger) SendCommand(queue string, command []byte) error {
	t.logger.Info("Sending command", slog.String("queue", queue), slog.Int("bytes", len(command)))
	return t.transport.SendCommand(queue, command)
}

func (t *TransportLogger) CommandQueue(queue string, handler core.Handler) (core.Unsubscriber, error) {
	return t.transport.CommandQueue(queue, func(command []byte, metadata core.Metadata) error {
		t.logger.Info("Received command", slog.String("queue", queue), slog.Int("bytes", len(command)))
		return handler(command, metadata)
	})
}

func (t *TransportLogger) Disconnect() error {
	t.logger.Info("Disconnecting transport")
	return t.transport.Disconnect()
}
