// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package systemd holds the engine's logind shutdown-inhibit lock
// (§5's "the engine should finish or cleanly park in-flight jobs
// before the host reboots") so a host reboot or poweroff waits for the
// shutdown callback registered via EnableShutdownInhibit to run. The
// unit-management surface the teacher's own systemd.go also carried
// (ListUnitsByNames, ReconcileSysUpdate and friends, all in service of
// reconciling a Hypervisor CRD's OS update) has no counterpart in this
// engine, which owns no systemd units and no CRD, so this package is
// trimmed to the inhibit lock alone.
package systemd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"

	gosystemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// Conn holds the engine's systemd/login1 D-Bus connections.
type Conn struct {
	conn       *gosystemd.Conn
	login1conn *dbus.Conn
	login1obj  dbus.BusObject

	prepareForShutdownSignal chan *dbus.Signal
	shutdownCh               chan bool

	fd int
}

func dialBus() (*dbus.Conn, error) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, err
	}
	methods := []dbus.Auth{
		dbus.AuthExternal("0"),
		dbus.AuthExternal(strconv.Itoa(os.Getuid())),
		dbus.AuthAnonymous(),
	}
	if err = conn.Auth(methods); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err = conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// New dials the system and login1 D-Bus connections.
func New(ctx context.Context) (*Conn, error) {
	log := obslog.FromContext(ctx, "component", "systemd")
	log.Info("connecting to systemd")

	conn, err := gosystemd.NewConnection(dialBus)
	if err != nil {
		return nil, err
	}

	// a separate connection is required for inhibition: go-systemd's
	// dbus.Conn doesn't expose login1's Inhibit call.
	login1, err := dialBus()
	if err != nil {
		return nil, fmt.Errorf("systemd: connecting to login1: %w", err)
	}

	return &Conn{
		conn:                     conn,
		login1conn:               login1,
		login1obj:                login1.Object("org.freedesktop.login1", "/org/freedesktop/login1"),
		prepareForShutdownSignal: make(chan *dbus.Signal, 1),
		shutdownCh:               make(chan bool),
		fd:                       -1,
	}, nil
}

// EnableShutdownInhibit takes a delay-type logind inhibitor lock and
// registers cb to run when the host starts a shutdown/sleep, releasing
// the lock once cb returns so the shutdown can proceed (§5).
func (c *Conn) EnableShutdownInhibit(ctx context.Context, cb func(context.Context) error) error {
	if c.fd != -1 {
		return fmt.Errorf("systemd: shutdown inhibition already enabled")
	}
	log := obslog.FromContext(ctx, "component", "systemd")
	log.Info("enabling shutdown inhibition")

	if err := c.login1obj.CallWithContext(
		ctx, "org.freedesktop.login1.Manager.Inhibit", 0,
		"sleep:shutdown",
		"winevm-scheduler",
		"Draining running Windows VM jobs before shutdown.",
		"delay",
	).Store(&c.fd); err != nil {
		return fmt.Errorf("systemd: taking inhibitor lock: %w", err)
	}

	go func() {
		select {
		case <-c.shutdownCh:
			return
		case signal, ok := <-c.prepareForShutdownSignal:
			if !ok {
				return
			}
			log.Info("received prepare-for-shutdown signal", "signal", signal)
			if err := cb(context.Background()); err != nil {
				log.Error(err, "shutdown callback failed")
			}
			if err := c.DisableShutdownInhibit(); err != nil {
				log.Error(err, "releasing shutdown inhibition")
			}
		}
	}()

	if err := c.login1conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchMember("PrepareForShutdown"),
	); err != nil {
		return fmt.Errorf("systemd: subscribing to PrepareForShutdown: %w", err)
	}
	c.login1conn.Signal(c.prepareForShutdownSignal)
	return nil
}

// DisableShutdownInhibit releases the inhibitor lock, if held.
func (c *Conn) DisableShutdownInhibit() error {
	if c.fd == -1 {
		return nil
	}
	c.login1conn.RemoveSignal(c.prepareForShutdownSignal)
	// Non-blocking: when called from the signal goroutine itself after
	// cb returns, nobody is left to receive.
	select {
	case c.shutdownCh <- true:
	default:
	}
	if err := syscall.Close(c.fd); err != nil {
		return fmt.Errorf("systemd: closing inhibitor fd: %w", err)
	}
	c.fd = -1
	return nil
}

// Close tears down both D-Bus connections.
func (c *Conn) Close() {
	c.conn.Close()
	_ = c.login1conn.Close()
}

// IsConnected reports whether both D-Bus connections are still live.
func (c *Conn) IsConnected() bool {
	return c.conn.Connected() && c.login1conn.Connected()
}
