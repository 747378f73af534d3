// Command demo runs a simulated water heater controlled by a state machine
// loaded from a configuration directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comalice/ctlfsm/internal/config"
	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/extensibility"
	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/production"
)

const machineName = "water-heater"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configDir   = flag.String("config", "cmd/demo/config", "configuration directory")
		logLevel    = flag.String("log-level", "info", "log level (trace, debug, info, warn, err, off)")
		journalPath = flag.String("journal", "", "SQLite transition journal path; empty disables")
		snapshotDir = flag.String("snapshots", "", "directory for the final YAML snapshot; empty prints it")
		runFor      = flag.Duration("duration", 30*time.Second, "run time; 0 runs until interrupted")
		sample      = flag.Duration("sample", 200*time.Millisecond, "sensor sample period")
		broken      = flag.Bool("broken", false, "simulate a failed heating element")
	)
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level)

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}

	records := make(chan core.TransitionRecord, 64)
	resets := extensibility.NewTimerEventSource("RESET", nil, 10*time.Second)
	defer resets.Stop()
	opts := []core.Option{
		core.WithVisualizer(&production.DefaultVisualizer{}),
		core.WithPublisher(production.NewChannelPublisher(records)),
		core.WithEventSource(resets),
	}

	var journal *production.SQLiteJournal
	if *journalPath != "" {
		journal, err = production.OpenJournal(*journalPath, production.WithJournalLogger(logger))
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, core.WithPublisher(journal))
	}

	registry := core.NewRegistry(logger, opts...)
	defer registry.StopAll()
	m := registry.Create(machineName)

	tank := newHeater(logger, 21, *broken)
	if err := m.Init(cfg); err != nil {
		return err
	}
	if err := m.SetHandler(tank.handler()); err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	go extensibility.NewSampler(m, "temp", *sample, tank.read, extensibility.WithSamplerLogger(logger)).Run(ctx)
	m.SetConditionValue("power", 1)

	status := time.NewTicker(2 * time.Second)
	defer status.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case rec := <-records:
			logger.Info().
				Str("from", rec.From).
				Str("to", rec.To).
				Str("event", rec.Event).
				Log("transition recorded")
		case <-status.C:
			logger.Info().
				Str("state", m.CurrentState()).
				Int("temp", m.GetConditionValue("temp")).
				Bool("element", tank.elementOn()).
				Log("status")
		}
	}

	logger.Info().Str("state", m.CurrentState()).Log("shutting down")
	snap := m.Snapshot()
	fmt.Println(m.Visualize())
	if err := registry.Remove(machineName); err != nil {
		return err
	}

	if *snapshotDir != "" {
		fn, err := production.SaveSnapshot(*snapshotDir, snap)
		if err != nil {
			return err
		}
		logger.Info().Str("file", fn).Log("snapshot saved")
	} else if err := production.WriteSnapshotYAML(os.Stdout, snap); err != nil {
		return err
	}

	if journal != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := journal.Flush(flushCtx); err != nil {
			return err
		}
		recs, err := journal.Records(flushCtx, machineName)
		if err != nil {
			return err
		}
		logger.Info().Int("transitions", len(recs)).Str("path", *journalPath).Log("journal written")
	}
	return nil
}
