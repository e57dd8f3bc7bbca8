package bus

import (
	"context"
	"math/rand"
	"time"

	"github.com/gehhilfe/brokerflux/core"
)

// LeakyTransport drops a percentage of outbound publishes and commands,
// for testing subscribers against lossy delivery.
type LeakyTransport struct {
	dropPercentage int // 0-100
	transport      core.Transport
}

func NewLeakyTransport(
	transport core.Transport,
	dropPercentage int,
) *LeakyTransport {
	return &LeakyTransport{
		transport:      transport,
		dropPercentage: min(max(dropPercentage, 0), 100),
	}
}

func (t *LeakyTransport) Publish(topic string, message []byte) error {
	if rand.Intn(100) < t.dropPercentage {
		return nil // Drop the message
	}
	return t.transport.Publish(topic, message)
}

func (t *LeakyTransport) Subscribe(topic string, handler core.Handler) (core.Unsubscriber, error) {
	return t.transport.Subscribe(topic, handler)
}

func (t *LeakyTransport) RPCCall(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error) {
	return t.transport.RPCCall(ctx, queue, request, timeout)
}

func (t *LeakyTransport) EnableRPCServer(queue string, handler core.RPCHandler) (core.Unsubscriber, error) {
	return t.transport.EnableRPCServer(queue, handler)
}

func (t *LeakyTransport) SendCommand(queue string, command []byte) error {
	if rand.Intn(100) < t.dropPercentage {
		return nil // Drop the command
	}
	return t.transport.SendCommand(queue, command)
}

func (t *LeakyTransport) CommandQueue(queue string, handler core.Handler) (core.Unsubscriber, error) {
	return t.transport.CommandQueue(queue, handler)
}

func (t *LeakyTransport) Disconnect() error {
	return t.transport.Disconnect()
}
