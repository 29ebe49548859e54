// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Command enginectl is the winevm-scheduler engine daemon: it owns the
// event loop (C8), the scheduler (C6), the VM lifecycle manager (C4)
// and the persistence connection (C3), and exposes the control
// channel (§6) plus an ambient, loopback-only metrics/timeline HTTP
// surface. The same binary, re-exec'd with a hidden first argument
// (vm.ChildSubcommand), also serves as the supervised per-VM child
// helper (§4.1) — see child.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/control"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/eventloop"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/metrics"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/scheduler"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/sys"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/systemd"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vm"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == vm.ChildSubcommand {
		os.Exit(runChild(os.Args[2:]))
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		emulate     bool
		postgresDSN string
		debug       bool
		plainBanner bool
		debugHTTP   string
	)

	cmd := &cobra.Command{
		Use:   "enginectl",
		Short: "Run the winevm-scheduler engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), engineOptions{
				configPath:  configPath,
				emulate:     emulate,
				postgresDSN: postgresDSN,
				debug:       debug,
				plainBanner: plainBanner,
				debugHTTP:   debugHTTP,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "/etc/winevm-scheduler/config.toml", "path to the engine's TOML config file")
	cmd.Flags().BoolVar(&emulate, "emulate", false, "use an in-memory store and an emulated hypervisor/agent instead of postgres/libvirt")
	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "postgres connection string (required unless --emulate)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable development-mode (human-readable) logging")
	cmd.Flags().BoolVar(&plainBanner, "plain-banner", false, "disable ANSI color in the startup banner")
	cmd.Flags().StringVar(&debugHTTP, "debug-http", "127.0.0.1:9090", "loopback address for /metrics and /timeline; empty disables both")

	return cmd
}

type engineOptions struct {
	configPath  string
	emulate     bool
	postgresDSN string
	debug       bool
	plainBanner bool
	debugHTTP   string
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runEngine(ctx context.Context, opts engineOptions) error {
	zl, err := buildLogger(opts.debug)
	if err != nil {
		return fmt.Errorf("enginectl: building logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	obslog.SetBase(zl)
	ctx = obslog.NewContext(ctx, obslog.Log)
	log := obslog.FromContext(ctx, "component", "enginectl", "host", sys.Hostname)

	printBanner(os.Stdout, true, !opts.plainBanner)

	if opts.emulate {
		_ = os.Setenv(envEmulate, "1")
		log.Info("running in emulated mode: in-memory store, emulated hypervisor and VM agent")
	} else {
		if opts.postgresDSN == "" {
			return fmt.Errorf("enginectl: --postgres-dsn is required unless --emulate is set")
		}
		_ = os.Setenv(envPostgresDSN, opts.postgresDSN)
	}

	watcher, err := config.NewWatcher(opts.configPath)
	if err != nil {
		return fmt.Errorf("enginectl: loading config %s: %w", opts.configPath, err)
	}

	st, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("enginectl: opening store: %w", err)
	}
	defer func() { _ = closeStore() }()

	hv := openHypervisor(ctx)
	vmMgr := vm.NewManager(st, hv, opts.configPath, watcher.Get)

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	loop := eventloop.New()
	eng := &engine{store: st, vmMgr: vmMgr, loop: loop}

	ctrl := &control.Dispatcher{
		Store:          st,
		Killer:         vmMgr,
		Screenshotter:  vmMgr,
		Shutdown:       eng,
		Loop:           loop,
		DataDir:        watcher.Get().DataDir,
		RescheduleName: schedulerTickName,
	}
	ctrlSrv, err := control.Listen(watcher.Get().ControlSocket, ctrl)
	if err != nil {
		return fmt.Errorf("enginectl: starting control socket: %w", err)
	}
	defer func() { _ = ctrlSrv.Close() }()

	var sysd systemd.Interface
	conn, err := systemd.New(ctx)
	if err != nil {
		log.Error(err, "connecting to systemd; shutdown draining will not be inhibited")
		sysd = systemd.NewEmulator(ctx)
	} else {
		sysd = conn
	}
	defer sysd.Close()
	if err := sysd.EnableShutdownInhibit(ctx, func(cbCtx context.Context) error {
		return eng.Shutdown(cbCtx, true, true)
	}); err != nil {
		log.Error(err, "enabling shutdown inhibition")
	}

	signalCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	var httpSrv *http.Server
	if opts.debugHTTP != "" {
		httpSrv = &http.Server{Addr: opts.debugHTTP, Handler: debugMux(registry, st)}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(err, "debug http server stopped")
			}
		}()
		log.Info("debug http surface listening", "addr", opts.debugHTTP)
	}

	go func() {
		if err := ctrlSrv.Serve(signalCtx); err != nil {
			log.Error(err, "control server stopped")
		}
	}()

	var lastCounters string
	var tick eventloop.Handler
	tick = func(tctx context.Context, now time.Time) {
		passID := uuid.NewString()
		deps := scheduler.Deps{Store: st, VM: vmMgr, Runner: vmMgr, GetConfig: watcher.Get}

		start := time.Now()
		result, err := scheduler.Run(tctx, now, deps, lastCounters)
		next := eventloop.SafetyNet
		if err != nil {
			log.Error(err, "scheduling pass failed", "passId", passID)
		} else {
			lastCounters = result.LastCounters
			collector.Observe(metrics.Sample{
				PassDuration: time.Since(start),
				Runnable:     result.Counters.Runnable,
				Queued:       result.Counters.Queued,
				Blocked:      result.Counters.Blocked,
			})
			log.Info("scheduling pass complete", "passId", passID,
				"touched", len(result.Touched), "nextTick", result.NextTick)
			next = result.NextTick
		}
		loop.Add(eventloop.Event{Name: schedulerTickName, Expires: time.Now().Add(next), Handler: tick})
	}
	loop.Add(eventloop.Event{Name: schedulerTickName, Expires: time.Now(), Handler: tick})

	log.Info("engine started")
	err = loop.Run(signalCtx)

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if errors.Is(err, context.Canceled) {
		log.Info("engine stopped")
		return nil
	}
	return err
}
