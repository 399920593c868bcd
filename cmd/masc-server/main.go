// masc-server is the MASC coordination substrate's entry point: it wires
// the Room Store, Session Registry, Task Engine, Resource Lock Manager,
// Planning Store, Event Bus, and Tool Dispatcher behind the hand-rolled
// JSON-RPC protocol layer, then serves it over stdio or HTTP.
// Grounded on cmd/mcp-server/main.go's config-load -> logger-setup ->
// service-wiring -> transport-dispatch -> graceful-shutdown shape.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jaakkos/masc/internal/config"
	"github.com/jaakkos/masc/internal/dispatcher"
	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/eventbus"
	"github.com/jaakkos/masc/internal/lockmanager"
	"github.com/jaakkos/masc/internal/mcpproto"
	"github.com/jaakkos/masc/internal/planning"
	"github.com/jaakkos/masc/internal/registry"
	"github.com/jaakkos/masc/internal/room"
	"github.com/jaakkos/masc/internal/schema"
	"github.com/jaakkos/masc/internal/storage"
	"github.com/jaakkos/masc/internal/tools/masctools"
	"github.com/jaakkos/masc/internal/transport/httptransport"
	"github.com/jaakkos/masc/internal/transport/stdio"
)

func main() {
	tmpLogger := log.New(os.Stderr, "[masc] ", log.LstdFlags)
	cfg := loadConfig(tmpLogger)

	logger := setupLogger(cfg.LogFile)
	logger.Println("Starting MASC server...")
	logger.Printf("Room dir: %s", cfg.RoomDir)
	logger.Printf("Feature mode: %s", cfg.Features)

	roomStore, err := room.NewStore(cfg.RoomDir)
	if err != nil {
		logger.Fatalf("room store: %v", err)
	}
	roomStore.AuditEnabled = cfg.AuditEnabled
	if _, err := roomStore.Init(filepath.Base(cfg.RoomDir)); err != nil {
		logger.Fatalf("room init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rateLimiter := registry.NewRateLimiter(registry.DefaultCategories())
	sessionRegistry := registry.New(rateLimiter)

	backend := storage.NewFileBackend(roomStore.Paths.Dir())
	locks := lockmanager.New(backend)

	planningStore := planning.New(func(taskID string) string {
		return roomStore.Paths.PlanningDir(taskID)
	})

	bus := eventbus.New(roomStore)
	go roomStore.Watch(ctx, bus.NotifyExternalChange)

	identityDir := filepath.Join(config.GlobalStateDir(), "identity")
	identityStore, err := dispatcher.NewFileIdentityStore(identityDir)
	if err != nil {
		logger.Fatalf("identity store: %v", err)
	}

	d := dispatcher.New(identityStore, roomStore, bus, logger)
	d.IsJoined = func(agent string) bool {
		a, err := roomStore.LoadAgent(agent)
		return err == nil && a != nil
	}
	d.AutoRegister = func(agent string) error {
		now := time.Now()
		return roomStore.SaveAgent(&domain.Agent{
			Name:     agent,
			Status:   domain.AgentActive,
			JoinedAt: now,
			LastSeen: now,
		})
	}
	d.Touch = sessionRegistry.Touch
	d.CheckRateLimit = func(agent, category string) (bool, float64) {
		return sessionRegistry.CheckRateLimit(agent, category, registry.RoleWorker)
	}

	masctools.Register(d, masctools.Deps{
		Room:     roomStore,
		Registry: sessionRegistry,
		Locks:    locks,
		Planning: planningStore,
		Presence: masctools.PresenceConfig{ZombieAfterSeconds: cfg.Presence.ZombieAfterSeconds},
	})

	catalog := schema.RoomCatalog{
		Catalog:          schema.NewCatalog(),
		Mode:             cfg.Features,
		CustomCategories: cfg.CustomCategories,
	}

	rpcServer := mcpproto.NewServer()

	// mcpproto.RegisterMethods (and the masc://who resource reader) resolve
	// agent context from a zero-argument closure rather than a per-request
	// parameter, so the HTTP handler stores the current request's context
	// here while holding rpcMu (a one-slot channel in runHTTPServer that
	// serializes JSON-RPC handling within this process), then reads it back
	// inside the closure.
	// The stdio transport has a single, constant session for its whole
	// lifetime, so it is set once up front.
	current := dispatcher.AgentContext{SessionID: stdio.SessionID}
	resources := buildResourceCatalog(roomStore, planningStore, identityStore, &current, catalog.List())

	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	transportName := strings.ToLower(os.Getenv("MASC_TRANSPORT"))
	switch transportName {
	case "http":
		mcpproto.RegisterMethods(rpcServer, catalog, d, resources, instructionsText(), func() dispatcher.AgentContext {
			return current
		})
		runHTTPServer(ctx, cfg, bus, rpcServer, &current, logger)
	default:
		mcpproto.RegisterMethods(rpcServer, catalog, d, resources, instructionsText(), func() dispatcher.AgentContext {
			return current
		})
		runStdioServer(ctx, rpcServer, logger)
	}

	logger.Println("Server stopped")
}

func runStdioServer(ctx context.Context, rpcServer *mcpproto.Server, logger *log.Logger) {
	logger.Println("Running in stdio mode")
	handler := func(body []byte) []byte { return rpcServer.HandleRaw(body) }
	if err := stdio.Loop(ctx, os.Stdin, os.Stdout, handler, logger); err != nil {
		logger.Printf("stdio server error: %v", err)
	}
}

// runHTTPServer serves the JSON-RPC layer over a single POST /mcp route
// plus the transport's /events SSE and /health endpoints.
func runHTTPServer(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, rpcServer *mcpproto.Server, current *dispatcher.AgentContext, logger *log.Logger) {
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	logger.Printf("Running in HTTP mode on %s", addr)

	srv := httptransport.New(addr, cfg.HTTP.MaxBodyBytes, bus, logger)
	srv.CORSOrigin = cfg.HTTP.CORSOrigin

	rpcMu := make(chan struct{}, 1)
	rpcMu <- struct{}{}

	srv.Handle("/mcp", httptransport.MethodHandler{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			<-rpcMu
			*current = dispatcher.AgentContext{SessionID: r.Header.Get("Mcp-Session-Id")}
			resp := rpcServer.HandleRaw(body)
			rpcMu <- struct{}{}

			w.Header().Set("Content-Type", "application/json")
			if resp == nil {
				w.WriteHeader(http.StatusAccepted)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(resp)
		},
	})

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Printf("HTTP server error: %v", err)
	}
}

func loadConfig(logger *log.Logger) *config.Config {
	path := os.Getenv("MASC_CONFIG")
	if path == "" {
		path = filepath.Join(config.GlobalStateDir(), "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Printf("Warning: failed to load config %s: %v, using defaults", path, err)
		cfg = config.Default()
	}
	if cfg.RoomDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get working directory: %v\n", err)
			os.Exit(1)
		}
		cfg.RoomDir = cwd
	}
	return cfg
}

func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer
	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			}
		}
	}
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}
	return log.New(io.MultiWriter(writers...), "[masc] ", log.LstdFlags)
}

func instructionsText() string {
	return "MASC coordinates multiple agents sharing one room: join, then use add_task/claim_next/masc_transition to work the backlog, send_message/wait_for_message to coordinate, and lock_file before editing a shared resource."
}
