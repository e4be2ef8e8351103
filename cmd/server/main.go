package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentlens/backend/internal/collector"
	"github.com/agentlens/backend/internal/config"
	"github.com/agentlens/backend/internal/mock"
	"github.com/agentlens/backend/internal/snapshot"
	"github.com/agentlens/backend/internal/watcher"
	"github.com/agentlens/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use synthetic session data")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	store := snapshot.NewStore(cfg.Watcher.StateDir)
	provider := watcher.NewClaudeProvider()

	var broadcaster *ws.Broadcaster
	col := collector.New(cfg, store, provider, func(sessionID string) {
		broadcaster.QueueUpdate(sessionID)
	})
	broadcaster = ws.NewBroadcaster(col, cfg.Watcher.BroadcastThrottle, cfg.Watcher.SnapshotInterval)
	col.SetRetireFunc(broadcaster.QueueRemoval)

	server := ws.NewServer(cfg, col, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Closed once the collector has taken its final checkpoint, so the
	// signal path does not exit mid-persist.
	done := make(chan struct{})
	if *mockMode {
		log.Println("Starting in mock mode")
		gen := mock.NewGenerator(col, broadcaster.QueueUpdate)
		gen.Start(ctx)
		close(done)
	} else {
		log.Println("Starting in watch mode (session log tailing)")
		go func() {
			col.Run(ctx)
			close(done)
		}()
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		<-done
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
