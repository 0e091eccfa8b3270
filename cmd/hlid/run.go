// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/hlid/internal/errors"
	"github.com/kraklabs/hlid/internal/ui"
	"github.com/kraklabs/hlid/pkg/aborted"
	"github.com/kraklabs/hlid/pkg/dedup"
	"github.com/kraklabs/hlid/pkg/dispatch"
	"github.com/kraklabs/hlid/pkg/engine"
	"github.com/kraklabs/hlid/pkg/memory"
	"github.com/kraklabs/hlid/pkg/observer"
	"github.com/kraklabs/hlid/pkg/readyset"
	"github.com/kraklabs/hlid/pkg/recordschema"
	"github.com/kraklabs/hlid/pkg/template"
)

const (
	tickInterval    = 2 * time.Second
	oomPollInterval = 5 * time.Second
)

// runRun loads the configuration, assembles every collaborator, and drives
// the dispatcher to completion, mirroring the teacher's "load config, build
// pipeline, run to quiescence" shape in cie's index command.
func runRun(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := dispatch.LoadRunConfig(configPath)
	if err != nil {
		errors.FatalError(translateDispatchError(err), globals.JSON)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	schema := recordschema.New(cfg.SecondaryArity)
	templates := template.NewStore()

	inputFile, err := os.Open(cfg.InputFile) //nolint:gosec // G304: path comes from the run config, not untrusted input
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot open input file",
			fmt.Sprintf("Failed to open %s", cfg.InputFile),
			"Check the input_file path in your configuration",
			err,
		), globals.JSON)
	}

	ready := readyset.New()
	abortedStore := aborted.New()

	// core is assigned once NewCore returns below; the budget's resize
	// callback only fires once a worker has started, which is always after
	// that assignment, so the closure is safe despite the forward reference.
	var core *dispatch.Core
	budget := memory.NewBudget(cfg.TotalMemoryLimit, cfg.BaseMemoryLimit, func() int {
		return core.LowestEffectiveMemoryLimit()
	})

	eng := engine.New(engine.Config{
		BinaryPath:      cfg.EngineBinaryPath,
		ScriptPath:      cfg.ScriptPath,
		ExtraFlags:      cfg.ExtraFlags,
		StagingDir:      cfg.StagingDir,
		OutputDir:       cfg.OutputDir,
		OutputExtension: ".out",
		Timeout:         cfg.Timeout,
	}, nil)
	if _, err := eng.CaptureVersion(ctx); err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot capture engine version",
			err.Error(),
			"Check engine_binary_path and script_path in your configuration",
			err,
		), globals.JSON)
	}

	giveup := dispatch.NewGiveupLog(cfg.GiveupLogPath)

	var dbView *dedup.DatabaseView
	if cfg.DatabaseDir != "" {
		dbView = dedup.NewDatabaseView(cfg.DatabaseDir, schema)
	}
	var outView *dedup.OutputDirView
	if cfg.OutputDir != "" {
		outView = dedup.NewOutputDirView(cfg.OutputDir, schema)
	}

	metrics, obs := buildObserver(cfg, globals)
	if metrics != nil {
		go func() {
			_ = http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()) //nolint:gosec // G114: internal metrics endpoint, no external TLS requirement
		}()
	}

	logger := slog.Default()
	core = dispatch.NewCore(cfg, templates, ready, abortedStore, budget, eng, giveup, obs, dbView, outView, logger)

	loadErr := core.LoadComputations(cfg.InputFile, inputFile, schema)
	_ = inputFile.Close()
	if loadErr != nil {
		errors.FatalError(translateDispatchError(loadErr), globals.JSON)
	}

	if cfg.OOMThresholdMB > 0 {
		go memory.WatchOOM(ctx, cfg.OOMThresholdMB, oomPollInterval, logger, func() {
			logger.Warn("local.run.oom_watchdog.triggered_shutdown")
			core.Terminate()
			cancel()
		})
	}

	var wg sync.WaitGroup
	wg.Add(cfg.NThreads)
	go func() {
		defer wg.Done()
		dispatch.RunWorker(ctx, core, 0, memory.RoleLarge)
	}()
	for i := 1; i < cfg.NThreads; i++ {
		go func(id int) {
			defer wg.Done()
			dispatch.RunWorker(ctx, core, id, memory.RoleNormal)
		}(i)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for !core.Finished() {
		select {
		case <-ticker.C:
			if err := core.Tick(); err != nil {
				errors.FatalError(errors.NewDatabaseError(
					"Cannot write to the giveup log",
					err.Error(),
					"Check the giveup_log_path directory's permissions",
					err,
				), globals.JSON)
			}
			core.DisplayMemory()
		case <-ctx.Done():
			core.Terminate()
		}
	}
	core.Terminate()
	wg.Wait()

	if globals.JSON {
		fmt.Printf(`{"abandoned":%d}`+"\n", core.Abandoned())
		return
	}
	ui.Header("Run Complete")
	fmt.Printf("%s %s\n", ui.Label("Abandoned:"), ui.CountText(core.Abandoned()))
}

// buildObserver assembles the observer chain: a stream observer unless
// quiet, plus a metrics observer when metrics_addr is configured. It
// returns the metrics observer separately (or nil) so the caller can start
// its HTTP handler without a type switch.
func buildObserver(cfg *dispatch.RunConfig, globals GlobalFlags) (*observer.Metrics, observer.Observer) {
	var obs []observer.Observer
	if !globals.Quiet {
		obs = append(obs, observer.NewStream())
	}
	var metrics *observer.Metrics
	if cfg.MetricsAddr != "" {
		metrics = observer.NewMetrics()
		obs = append(obs, metrics)
	}
	switch len(obs) {
	case 0:
		return metrics, observer.Null{}
	case 1:
		return metrics, obs[0]
	default:
		return metrics, observer.Multi(obs)
	}
}
