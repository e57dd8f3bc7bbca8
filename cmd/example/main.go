package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gehhilfe/brokerflux"
	"github.com/gehhilfe/brokerflux/core"
)

var (
	natsServer = flag.String("server", nats.DefaultURL, "NATS server URL")
	journal    = flag.String("journal", "", "path to an outbound journal file")
)

func main() {
	flag.Parse()

	opts := []brokerflux.Option{brokerflux.WithVerboseTransport()}
	if *journal != "" {
		opts = append(opts, brokerflux.WithJournal(*journal))
	}

	broker := brokerflux.New(opts...)
	if err := broker.Start(core.Config{URL: *natsServer, Name: "brokerflux-example"}); err != nil {
		slog.Error("Failed to start broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer broker.Stop()

	broker.SubscribeLocal("orders", func(message []byte, metadata core.Metadata) error {
		slog.Info("Local order received", slog.String("message", string(message)))
		return nil
	})
	if err := broker.PublishLocal("orders", []byte("espresso")); err != nil {
		slog.Error("Failed to publish locally", slog.Any("error", err))
	}

	broker.SubscribeGlobal("events.demo", func(message []byte, metadata core.Metadata) error {
		slog.Info("Global event received", slog.String("message", string(message)))
		return nil
	})
	if err := broker.PublishGlobal("events.demo", []byte("hello world")); err != nil {
		slog.Error("Failed to publish globally", slog.Any("error", err))
	}

	broker.EnableRPCServer("echo", func(request []byte, metadata core.Metadata) ([]byte, error) {
		return request, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	reply, err := broker.RPCCall(ctx, "echo", []byte("ping"))
	cancel()
	if err != nil {
		slog.Error("RPC call failed", slog.Any("error", err))
	} else {
		slog.Info("RPC reply", slog.String("reply", string(reply)))
	}

	broker.DeclareCommandQueue("jobs", func(command []byte, metadata core.Metadata) error {
		slog.Info("Command received", slog.String("command", string(command)))
		return nil
	})
	if err := broker.SendCommand("jobs", []byte("rotate-logs")); err != nil {
		slog.Error("Failed to send command", slog.Any("error", err))
	}

	sigIntCh := make(chan os.Signal, 1)
	signal.Notify(sigIntCh, os.Interrupt)
	slog.Info("Running, press ctrl-c to exit")
	<-sigIntCh
	slog.Info("Shutting down...")
}
