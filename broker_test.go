package brokerflux

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	test "github.com/nats-io/nats-server/v2/test"

	"github.com/gehhilfe/brokerflux/core"
	"github.com/gehhilfe/brokerflux/store/bolt"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	s := test.RunDefaultServer()
	t.Cleanup(s.Shutdown)
	return s
}

func startBroker(t *testing.T, opts ...Option) *Broker {
	t.Helper()
	s := runServer(t)

	b := New(opts...)
	if err := b.Start(core.Config{URL: s.ClientURL(), Name: "test-broker"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Stop() })
	return b
}

func TestBrokerInactiveBeforeStart(t *testing.T) {
	b := New()

	if err := b.PublishLocal("orders", []byte("x")); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if _, err := b.SubscribeGlobal("orders", nil); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if _, err := b.RPCCall(context.Background(), "echo", []byte("x")); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if err := b.Stop(); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
}

func TestBrokerStartTwice(t *testing.T) {
	s := runServer(t)

	b := New()
	if err := b.Start(core.Config{URL: s.ClientURL()}); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if err := b.Start(core.Config{URL: s.ClientURL()}); !errors.Is(err, core.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestBrokerStartConnectFailure(t *testing.T) {
	b := New()

	err := b.Start(core.Config{URL: "nats://127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected connect failure")
	}

	// Still inactive after the failed start.
	if err := b.PublishLocal("orders", []byte("x")); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
}

func TestBrokerInactiveAfterStop(t *testing.T) {
	s := runServer(t)

	b := New()
	if err := b.Start(core.Config{URL: s.ClientURL()}); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := b.PublishLocal("orders", []byte("x")); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if _, err := b.SubscribeGlobal("orders", nil); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if _, err := b.RPCCall(context.Background(), "echo", []byte("x")); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive, got %v", err)
	}
	if err := b.Stop(); !errors.Is(err, core.ErrInactive) {
		t.Errorf("expected ErrInactive on second stop, got %v", err)
	}
}

func TestBrokerLocalFanOutOrder(t *testing.T) {
	b := startBroker(t)

	var log []string
	b.SubscribeLocal("orders", func(message []byte, metadata core.Metadata) error {
		log = append(log, "A")
		return nil
	})
	b.SubscribeLocal("orders", func(message []byte, metadata core.Metadata) error {
		log = append(log, "B")
		return nil
	})

	if err := b.PublishLocal("orders", []byte("x")); err != nil {
		t.Fatal(err)
	}

	if len(log) != 2 || log[0] != "A" || log[1] != "B" {
		t.Errorf("expected [A B], got %v", log)
	}
}

func TestBrokerLocalPublishWithoutSubscription(t *testing.T) {
	b := startBroker(t)

	err := b.PublishLocal("void", []byte("x"))
	if !errors.Is(err, core.ErrNoLocalSubscription) {
		t.Errorf("expected ErrNoLocalSubscription, got %v", err)
	}
}

func TestBrokerGlobalPubSub(t *testing.T) {
	b := startBroker(t)

	var wg sync.WaitGroup
	var receivedMessage []byte

	_, err := b.SubscribeGlobal("events", func(message []byte, metadata core.Metadata) error {
		defer wg.Done()
		receivedMessage = message
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wg.Add(1)
	if err := b.PublishGlobal("events", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	wg.Wait()
	if string(receivedMessage) != "hello" {
		t.Errorf("expected 'hello', got %q", receivedMessage)
	}
}

func TestBrokerRPCEcho(t *testing.T) {
	b := startBroker(t)

	_, err := b.EnableRPCServer("echo", func(request []byte, metadata core.Metadata) ([]byte, error) {
		return request, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	reply, err := b.RPCCall(context.Background(), "echo", []byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "ping" {
		t.Errorf("expected 'ping', got %q", reply)
	}
}

func TestBrokerRPCNoReceiver(t *testing.T) {
	b := startBroker(t, WithRPCTimeout(2*time.Second))

	start := time.Now()
	_, err := b.RPCCall(context.Background(), "nobody-listening", []byte("ping"))
	if !errors.Is(err, core.ErrNoReceiver) {
		t.Errorf("expected ErrNoReceiver, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("call took %s, expected a bounded wait", elapsed)
	}
}

func TestBrokerDuplicateRPCServer(t *testing.T) {
	b := startBroker(t)

	echo := func(request []byte, metadata core.Metadata) ([]byte, error) {
		return request, nil
	}

	if _, err := b.EnableRPCServer("echo", echo); err != nil {
		t.Fatal(err)
	}
	if _, err := b.EnableRPCServer("echo", echo); !errors.Is(err, core.ErrRPCServerExists) {
		t.Errorf("expected ErrRPCServerExists, got %v", err)
	}
}

func TestBrokerCommandQueue(t *testing.T) {
	b := startBroker(t)

	var wg sync.WaitGroup
	var receivedCommand []byte

	_, err := b.DeclareCommandQueue("jobs", func(command []byte, metadata core.Metadata) error {
		defer wg.Done()
		receivedCommand = command
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wg.Add(1)
	if err := b.SendCommand("jobs", []byte("rotate-logs")); err != nil {
		t.Fatal(err)
	}

	wg.Wait()
	if string(receivedCommand) != "rotate-logs" {
		t.Errorf("expected 'rotate-logs', got %q", receivedCommand)
	}
}

func TestBrokerFailureFunnel(t *testing.T) {
	failures := make(chan core.Failure, 1)
	b := startBroker(t, WithFailureHandler(func(f core.Failure) {
		failures <- f
	}))

	boom := errors.New("boom")
	_, err := b.SubscribeGlobal("events", func(message []byte, metadata core.Metadata) error {
		return boom
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.PublishGlobal("events", []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-failures:
		if f.Source != "global" || f.Subject != "events" || !errors.Is(f.Err, boom) {
			t.Errorf("unexpected failure: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected global handler error to reach the failure handler")
	}
}

func TestBrokerStopInterruptsRPCCall(t *testing.T) {
	b := startBroker(t, WithRPCTimeout(10*time.Second))

	// A server that never replies keeps the caller blocked.
	_, err := b.EnableRPCServer("tarpit", func(request []byte, metadata core.Metadata) ([]byte, error) {
		return nil, errors.New("no reply")
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.RPCCall(context.Background(), "tarpit", []byte("ping"))
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrTransportClosed) {
			t.Errorf("expected ErrTransportClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("expected stop to interrupt the pending call")
	}
}

func TestBrokerJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s := runServer(t)

	b := New(WithJournal(path))
	if err := b.Start(core.Config{URL: s.ClientURL()}); err != nil {
		t.Fatal(err)
	}

	if err := b.PublishGlobal("events", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := b.SendCommand("jobs", []byte("go")); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	journal, err := bolt.NewJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	var publications []bolt.Entry
	for entry, err := range journal.Entries(bolt.KindPublication) {
		if err != nil {
			t.Fatal(err)
		}
		publications = append(publications, entry)
	}
	if len(publications) != 1 || publications[0].Subject != "events" || string(publications[0].Payload) != "one" {
		t.Errorf("unexpected publications: %+v", publications)
	}

	var commands []bolt.Entry
	for entry, err := range journal.Entries(bolt.KindCommand) {
		if err != nil {
			t.Fatal(err)
		}
		commands = append(commands, entry)
	}
	if len(commands) != 1 || commands[0].Subject != "jobs" || string(commands[0].Payload) != "go" {
		t.Errorf("unexpected commands: %+v", commands)
	}
}
