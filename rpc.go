package brokerflux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/gehhilfe/brokerflux/core"
)

// rpcGateway adapts blocking call/reply semantics onto the transport's
// asynchronous RPC primitives. Reply correlation is the transport's job;
// the gateway bounds the wait and keeps one server per queue name.
type rpcGateway struct {
	transport core.Transport
	timeout   time.Duration

	mu      sync.Mutex
	servers map[string]struct{}
}

func newRPCGateway(transport core.Transport, timeout time.Duration) *rpcGateway {
	return &rpcGateway{
		transport: transport,
		timeout:   timeout,
		servers:   make(map[string]struct{}),
	}
}

func (g *rpcGateway) call(ctx context.Context, receiver string, message []byte) ([]byte, error) {
	logger := slogctx.FromCtx(ctx)
	logger.Debug("RPC call", slog.String("receiver", receiver), slog.Int("bytes", len(message)))

	return g.transport.RPCCall(ctx, receiver, message, g.timeout)
}

func (g *rpcGateway) enableServer(queue string, handler core.RPCHandler) (core.Unsubscriber, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.servers[queue]; exists {
		return nil, fmt.Errorf("%w: %s", core.ErrRPCServerExists, queue)
	}

	unsub, err := g.transport.EnableRPCServer(queue, handler)
	if err != nil {
		return nil, err
	}
	g.servers[queue] = struct{}{}

	return core.UnsubscribeFunc(func() error {
		g.mu.Lock()
		delete(g.servers, queue)
		g.mu.Unlock()
		return unsub.Unsubscribe()
	}), nil
}
