// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// Server listens on a Unix-domain stream socket and dispatches every
// line a connection sends, read through a bufio.Scanner and answered
// with one reply line each (§6).
type Server struct {
	path string
	ln   net.Listener
	d    *Dispatcher
}

// Listen creates (replacing any stale socket file left by a prior
// crashed run) and binds the control socket at path.
func Listen(path string, d *Dispatcher) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Server{path: path, ln: ln, d: d}, nil
}

// Serve accepts connections until ctx is canceled or the listener is
// closed.
func (s *Server) Serve(ctx context.Context) error {
	log := obslog.FromContext(ctx, "component", "control")
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn, log)
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn, log interface {
	Info(string, ...any)
	Error(error, string, ...any)
}) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		r := s.d.Dispatch(ctx, time.Now(), fields)
		if _, err := conn.Write([]byte(r.Encode() + "\n")); err != nil {
			log.Error(err, "writing control reply")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error(err, "reading control command")
	}
}
