// Command telemetryd runs the ingest side of the pipeline: the HTTP
// event surface (C3), the Cursor SQLite monitor (C4), the Claude Code
// JSONL tail reader (C5), and the session registry's stale-PID sweep
// (C6), all producing into the shared Redis Streams queue (C2).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/claudetail"
	"github.com/blueplane-ai/bp-telemetry-core/internal/config"
	"github.com/blueplane-ai/bp-telemetry-core/internal/cursormonitor"
	"github.com/blueplane-ai/bp-telemetry-core/internal/errkind"
	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/health"
	"github.com/blueplane-ai/bp-telemetry-core/internal/ingress"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
	"github.com/blueplane-ai/bp-telemetry-core/internal/offsets"
	blueplaneotel "github.com/blueplane-ai/bp-telemetry-core/internal/otel"
	"github.com/blueplane-ai/bp-telemetry-core/internal/registry"
	"github.com/blueplane-ai/bp-telemetry-core/internal/retention"
	"github.com/blueplane-ai/bp-telemetry-core/internal/store"
	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// shutdownBudget bounds how long telemetryd waits for its background
// loops to stop before abandoning them (spec §5).
const shutdownBudget = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("telemetryd", flag.ContinueOnError)
	httpAddr := fs.String("http-addr", ":8787", "HTTP address for POST /events")
	healthAddr := fs.String("health-addr", ":8788", "HTTP address for GET /health")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: invalid configuration: %v\n", err)
		return 2
	}
	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		return 2
	}

	logger := events.NewEventLogger("telemetryd")
	events.SetGlobalEventLogger(logger)

	st, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	broker := mqueue.NewRedisBrokerFromAddr(cfg.RedisAddr())
	defer broker.Close()
	if err := broker.EnsureGroup(context.Background(), mqueue.StreamMessageQueue, mqueue.ProcessorsGroup); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: ensure consumer group: %v\n", err)
		return 1
	}

	ing := ingress.New(broker, logger)
	relay := ingress.NewRelay(ing)

	reg := registry.New(st)
	sweeper := registry.NewSweeper(reg, pidLiveness, config.DefaultSessionSweepInterval(), config.DefaultSessionStale(), logger)
	sweeper.Start()
	defer sweeper.Stop()

	off := offsets.New(st)
	claudeReader := claudetail.New(claudetail.DefaultConfig(), off, relay, events.NewEventLogger("claudetail"))
	claudeReader.Start()
	defer claudeReader.Stop()

	cursorCfg := cursormonitor.DefaultConfig()
	cursorMon := cursormonitor.New(cursorCfg, reg, st, relay, events.NewEventLogger("cursormonitor"))
	cursorMon.Start()
	defer cursorMon.Stop()

	retentionMgr := retention.NewManager(retention.DefaultConfig(), st)
	retentionMgr.Start()
	defer retentionMgr.Stop()

	collector := health.NewCollector(blueplaneotel.GetGlobalMetrics())
	healthSrv := &http.Server{Addr: *healthAddr, Handler: health.NewServer(collector)}
	ingressSrv := &http.Server{Addr: *httpAddr, Handler: ingress.NewServer(ing)}

	serveErrCh := make(chan error, 2)
	go func() {
		if err := ingressSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("ingress server: %w", err)
		}
	}()
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	fmt.Printf("telemetryd: ingress on %s, health on %s\n", *httpAddr, *healthAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("telemetryd: shutting down")
	case err := <-serveErrCh:
		fmt.Fprintf(os.Stderr, "telemetryd: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	if err := ingressSrv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: ingress shutdown: %v\n", err)
	}
	if err := healthSrv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetryd: health shutdown: %v\n", err)
	}

	fmt.Println("telemetryd: stopped")
	return 0
}

// pidLiveness backs registry.Sweeper's stale-PID check with the real
// OS process table (spec §4.6).
func pidLiveness(pid int) (bool, error) {
	alive, err := gopsutilprocess.PidExists(int32(pid))
	if err != nil {
		return false, errkind.NewTransientIOError("pid liveness check", err)
	}
	return alive, nil
}
