// Command consumerd runs C7: the fast-path batcher that pulls events
// off telemetry:message_queue via the shared "processors" consumer
// group and commits them into the unified store (C8/C9). Horizontally
// scalable — run multiple instances with distinct -consumer-name
// values against the same Redis (spec §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/config"
	"github.com/blueplane-ai/bp-telemetry-core/internal/consumer"
	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/health"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
	blueplaneotel "github.com/blueplane-ai/bp-telemetry-core/internal/otel"
	"github.com/blueplane-ai/bp-telemetry-core/internal/store"
)

// shutdownBudget bounds how long consumerd waits for an in-flight
// batch to finish committing before abandoning it (spec §5).
const shutdownBudget = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("consumerd", flag.ContinueOnError)
	consumerName := fs.String("consumer-name", "", "consumer identity within the processors group (default: hostname-pid)")
	healthAddr := fs.String("health-addr", ":8789", "HTTP address for GET /health")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: %v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: invalid configuration: %v\n", err)
		return 2
	}
	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: %v\n", err)
		return 2
	}

	if *consumerName == "" {
		host, _ := os.Hostname()
		*consumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	logger := events.NewEventLogger("consumerd")
	events.SetGlobalEventLogger(logger)

	st, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	broker := mqueue.NewRedisBrokerFromAddr(cfg.RedisAddr())
	defer broker.Close()
	if err := broker.EnsureGroup(context.Background(), mqueue.StreamMessageQueue, mqueue.ProcessorsGroup); err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: ensure consumer group: %v\n", err)
		return 1
	}

	batcher := consumer.New(broker, st, consumer.DefaultConfig(*consumerName), logger)

	collector := health.NewCollector(blueplaneotel.GetGlobalMetrics())
	healthSrv := &http.Server{Addr: *healthAddr, Handler: health.NewServer(collector)}

	go reportLag(broker, collector)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	batchErrCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		if err := batcher.Run(ctx); err != nil {
			batchErrCh <- err
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	fmt.Printf("consumerd: consumer %q on group %q, health on %s\n", *consumerName, mqueue.ProcessorsGroup, *healthAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		fmt.Println("consumerd: shutting down")
	case err := <-batchErrCh:
		fmt.Fprintf(os.Stderr, "consumerd: batcher stopped: %v\n", err)
		exitCode = 1
	case err := <-serveErrCh:
		fmt.Fprintf(os.Stderr, "consumerd: %v\n", err)
		exitCode = 1
	}

	cancel()

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(shutdownBudget):
		fmt.Fprintln(os.Stderr, "consumerd: shutdown timeout, abandoning in-flight batch")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "consumerd: health shutdown: %v\n", err)
	}

	fmt.Println("consumerd: stopped")
	return exitCode
}

// reportLag polls the processors group's pending-entries count into
// the health collector every 10s, so /health's consumer_lag gauge
// (spec §7) reflects reality without the batcher's hot path having to
// thread a collector reference through every read.
func reportLag(broker *mqueue.RedisBroker, collector *health.Collector) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		lag, err := broker.PendingCount(context.Background(), mqueue.StreamMessageQueue, mqueue.ProcessorsGroup)
		if err != nil {
			collector.RecordPollError()
			continue
		}
		collector.SetConsumerLag(lag)
	}
}
