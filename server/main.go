// Command server runs the SYNCOUT collaborative editing server: REST session
// endpoints plus the websocket sync engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/grandcat/zeroconf"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bannushaxddd/SYNCOUT/server/api"
	"github.com/bannushaxddd/SYNCOUT/server/backplane"
	"github.com/bannushaxddd/SYNCOUT/server/config"
	"github.com/bannushaxddd/SYNCOUT/server/hub"
	"github.com/bannushaxddd/SYNCOUT/server/session"
	"github.com/bannushaxddd/SYNCOUT/server/store"
)

// MDNSService is the service type agents browse for.
const MDNSService = "_syncout._tcp"

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *addr); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(cfg.SessionLinger)

	var st *store.Postgres
	if cfg.DatabaseURL != "" {
		st, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer st.Close()
		slog.Info("session store enabled")
	}

	var bp hub.Backplane
	if cfg.RedisAddr != "" {
		rb, err := backplane.New(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rb.Close()
		bp = rb
		slog.Info("redis backplane enabled", "addr", cfg.RedisAddr)
	}

	manager := hub.NewManager(ctx, registry, bp)
	registry.OnCreate = func(s *session.Session) {
		if st != nil {
			if err := st.SessionCreated(ctx, s.ID, s.Language(), s.CreatedAt); err != nil {
				slog.Warn("record session create failed", "session", s.ID, "error", err)
			}
		}
	}
	registry.OnDestroy = func(s *session.Session) {
		manager.CloseHub(s.ID)
		if st != nil {
			if err := st.SessionClosed(ctx, s.ID, time.Now()); err != nil {
				slog.Warn("record session close failed", "session", s.ID, "error", err)
			}
		}
	}

	r := mux.NewRouter()
	var stats api.Stats
	if st != nil {
		stats = st
	}
	api.New(registry, stats).Register(r)
	r.HandleFunc("/ws/{session_id}", manager.ServeWS)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	if cfg.MDNS {
		host, _ := os.Hostname()
		mdns, err := zeroconf.Register("SYNCOUT-"+host, MDNSService, "local.", cfg.MDNSPort, []string{"txtv=0"}, nil)
		if err != nil {
			return fmt.Errorf("register mDNS: %w", err)
		}
		defer mdns.Shutdown()
		slog.Info("mDNS service registered", "service", MDNSService, "port", cfg.MDNSPort)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("SYNCOUT server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		registry.RunReaper(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
