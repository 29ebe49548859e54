// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads the per-host scheduler limits (§4.3) from a
// TOML file and watches it for changes, the way the teacher watches
// its kubeconfig/webhook certs via fsnotify under the controller-runtime
// manager.
package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// HostLimits are the scheduling limits §4.3 defines per hypervisor host.
type HostLimits struct {
	MaxActiveVMs             int `toml:"max_active_vms"`
	MaxRunningVMs             int `toml:"max_running_vms"` // 0 => defaults to MaxActiveVMs, see §9 open question
	MaxRevertingVMs           int `toml:"max_reverting_vms"`
	MaxRevertsWhileRunningVMs int `toml:"max_reverts_while_running_vms"`
	MaxVMsWhenIdle            int `toml:"max_vms_when_idle"`
}

// EffectiveMaxRunningVMs applies the §9 open-question default/clamp:
// MaxRunningVMs defaults to MaxActiveVMs and never exceeds it.
func (l HostLimits) EffectiveMaxRunningVMs() int {
	if l.MaxRunningVMs <= 0 || l.MaxRunningVMs > l.MaxActiveVMs {
		return l.MaxActiveVMs
	}
	return l.MaxRunningVMs
}

// Config is the engine's live configuration.
type Config struct {
	DataDir string `toml:"data_dir"`

	// MaxVMErrors is the threshold at which a VM is demoted to
	// maintenance after repeated revert failures (§4.1).
	MaxVMErrors int `toml:"max_vm_errors"`

	// MaxTaskTries is the retry budget for transient task failures (§7).
	MaxTaskTries int `toml:"max_task_tries"`

	// WaitForToolsInVM bounds how long RunRevert waits for the VM
	// agent to answer after a revert (§4.1), in seconds.
	WaitForToolsInVM int `toml:"wait_for_tools_in_vm"`

	// SleepAfterRevert is how long a freshly reverted VM settles
	// before being marked idle (§4.1), in seconds.
	SleepAfterRevert int `toml:"sleep_after_revert"`

	// BuildTimeout is the "next-step preparation cutoff" (§9): tasks
	// whose Timeout exceeds this do not trigger next-step prep.
	BuildTimeout int `toml:"build_timeout"`

	// ControlSocket is the Unix-domain socket path internal/control
	// listens on (§6).
	ControlSocket string `toml:"control_socket"`

	Hosts map[string]HostLimits `toml:"hosts"`
}

// Default returns sane defaults matching the literals used in the
// spec's worked examples.
func Default() Config {
	return Config{
		DataDir:          "/var/lib/winevm-scheduler",
		MaxVMErrors:      5,
		MaxTaskTries:     3,
		WaitForToolsInVM: 180,
		SleepAfterRevert: 10,
		BuildTimeout:     3600,
		ControlSocket:    "/var/lib/winevm-scheduler/control.sock",
		Hosts:            map[string]HostLimits{},
	}
}

// Watcher holds a live Config value that is refreshed from disk on
// every fsnotify Write event for the underlying file.
type Watcher struct {
	path string
	cur  atomic.Pointer[Config]
	mu   sync.Mutex
}

// NewWatcher loads path once and starts watching it for changes. The
// returned Watcher's Get always reflects the last good parse; a parse
// error on reload is logged and the previous value is kept.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path}
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	w.cur.Store(cfg)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting fsnotify watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}
	go w.run(fw)
	return w, nil
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	log := obslog.FromContext(context.Background(), "component", "config")
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := load(w.path)
			if err != nil {
				log.Error(err, "reload failed, keeping previous config", "path", w.path)
				continue
			}
			w.mu.Lock()
			w.cur.Store(cfg)
			w.mu.Unlock()
			log.Info("config reloaded", "path", w.path)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Error(err, "fsnotify watch error")
		}
	}
}

// Get returns the current configuration.
func (w *Watcher) Get() Config {
	return *w.cur.Load()
}

// Load reads and parses path once, for short-lived callers (the
// re-exec'd child helper) that have no need for a live Watcher.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &cfg, nil
}
