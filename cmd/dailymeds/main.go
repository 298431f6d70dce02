// Package main provides the DailyMeds host process: it owns the local store,
// runs the one-time legacy history migration, starts background sync, and
// serves a localhost health/status endpoint for the UI shell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/config"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/crypto"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/history"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/identity"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/logging"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/storage"
	syncpkg "github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync/queue"
	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/sync/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "dailymeds.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("failed to load config", err)
		os.Exit(1)
	}
	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	logging.Info("DailyMeds starting", map[string]interface{}{"version": Version})

	var storeOpts []storage.Option
	if cfg.DeviceID != "" {
		storeOpts = append(storeOpts, storage.WithEncryptionKey(crypto.GetDeviceKey(cfg.DeviceID)))
	}
	store, err := storage.Open(cfg.DataDir, storeOpts...)
	if err != nil {
		logging.Error("failed to open local store", err)
		os.Exit(1)
	}
	defer store.Close()

	// The UI shell's auth flow sets the active user; this headless host
	// reads it from the environment.
	ids := identity.NewStaticResolver(os.Getenv("DAILYMEDS_USER"))

	events := history.NewStore(store, ids)

	// The legacy-format upgrade must run before any merge or sync logic
	// touches the data.
	if n := events.MigrateLegacyHistory(""); n > 0 {
		logging.Info("migrated legacy history entries", map[string]interface{}{"converted": n})
	}

	remote := syncpkg.NewClient(nil, cfg.RemoteBaseURL, cfg.RemoteToken)
	prober := syncpkg.NewProber(cfg.RemoteBaseURL)
	merger := syncpkg.NewMerger(events)
	q := queue.New(store, remote, prober, cfg.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(merger, remote, prober, ids, q, &scheduler.Config{
		SyncInterval: cfg.SyncInterval,
	})
	sched.Start(ctx)
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"service": "dailymeds",
			"version": Version,
			"sync":    sched.GetStatus(),
		})
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logging.Info("health endpoint listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("health endpoint failed", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logging.Info("shutting down", nil)
	server.Shutdown(context.Background())
}
