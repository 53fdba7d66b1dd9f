package main

import (
	"chat-relay/infrastructure/grpc"
	"chat-relay/infrastructure/tcp"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/storage"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the relay.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns their lifetime, so deferred cleanups
// always execute before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. History (BadgerDB) & voice notes
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	voiceNotes, err := storage.NewVoiceNoteStore(config.VoiceNoteDir, log)
	if err != nil {
		return exitRuntime, fmt.Errorf("voice note directory unusable: %w", err)
	}

	// 3. Shared state & routing
	registry := runtime.NewRegistry()
	history := repositories.NewHistoryRepository(db, log)
	router := runtime.NewRouter(log, registry, history, voiceNotes)

	// 4. Listeners
	listener, err := net.Listen("tcp", config.Address())
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.Address(), err)
	}
	server := tcp.NewServer(log, listener, registry, router, config.MaxConnections, tcp.SessionConfig{
		BufferSize:     config.ConnectionBufferSize,
		MaxLineLength:  config.MaxLineLength,
		MaxPayload:     config.MaxVoiceNoteBytes,
		PayloadTimeout: config.VoiceNoteReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		DrainTimeout:   config.ShutdownTimeout,
	})

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(server)
	if config.StatsInterval > 0 {
		sup.Add(workers.NewStatsWorker(log, registry, server.ActiveConnections, config.StatsInterval))
	}

	var healthServer *grpc.HealthServer
	if config.HealthPort > 0 {
		healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
		healthListener, err := net.Listen("tcp", healthAddress)
		if err != nil {
			_ = listener.Close()
			return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
		}
		healthServer = grpc.NewHealthServer(log, healthListener)
		sup.Add(healthServer)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	if healthServer != nil {
		healthServer.SetServing(true)
	}
	log.Info("Relay started", "address", server.Addr().String(), "at", time.Now().UTC())

	// 6. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	sup.Stop()

	select {
	case <-done:
		log.Info("Program stopped cleanly")
	case <-time.After(config.ShutdownTimeout + time.Second):
		log.Warn("Shutdown timeout exceeded, some sessions were still closing")
	}
	return exitOK, nil
}
