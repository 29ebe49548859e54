// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bufio"
	"context"
	"encoding/base64"
	"net"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/eventloop"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// roundTrip dials sockPath, writes one command line and returns the
// single reply line the server sends back, without its newline.
func roundTrip(sockPath, command string) (string, error) {
	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", err
	}
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line[:len(line)-1], nil
}

var _ = Describe("Control socket", func() {
	var (
		mem      *store.Memory
		d        *Dispatcher
		sockPath string
		srv      *Server
		cancel   context.CancelFunc
		done     chan error
	)

	BeforeEach(func() {
		mem = store.NewMemory()
		loop := eventloop.New()
		loop.Add(eventloop.Event{Name: "scheduler-tick", Expires: time.Now().Add(time.Hour),
			Handler: func(context.Context, time.Time) {}})
		d = &Dispatcher{
			Store:          mem,
			Killer:         &fakeKiller{},
			Screenshotter:  &fakeScreenshotter{data: []byte("png-bytes")},
			Shutdown:       &fakeShutdowner{},
			Loop:           loop,
			DataDir:        GinkgoT().TempDir(),
			RescheduleName: "scheduler-tick",
		}
		sockPath = filepath.Join(GinkgoT().TempDir(), "control.sock")

		var err error
		srv, err = Listen(sockPath, d)
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- srv.Serve(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Expect(<-done).To(Succeed())
	})

	Context("when a client sends ping", func() {
		It("replies with pong", func() {
			reply, err := roundTrip(sockPath, "ping")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("1pong"))
		})
	})

	Context("when a client requests a screenshot of a VM that is in the fleet", func() {
		BeforeEach(func() {
			mem.Seed([]api.VM{{Name: "win-1", Status: api.StatusRunning}}, nil, nil, nil)
		})

		It("replies with the base64-encoded screenshot payload", func() {
			reply, err := roundTrip(sockPath, "getscreenshot win-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(HavePrefix("1"))

			data, err := base64.StdEncoding.DecodeString(reply[1:])
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png-bytes"))
		})
	})

	Context("when a client requests a screenshot of an unknown VM", func() {
		It("fails without touching the screenshotter", func() {
			reply, err := roundTrip(sockPath, "getscreenshot ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(HavePrefix("0"))
		})
	})

	Context("when a client forces a reschedule", func() {
		It("triggers the scheduler-tick event and reports success", func() {
			reply, err := roundTrip(sockPath, "reschedulejobs")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("1reschedulejobs requested"))
		})
	})

	Context("when a client sends an unknown command", func() {
		It("fails with the unrecognized command named in the reply", func() {
			reply, err := roundTrip(sockPath, "doesnotexist")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(ContainSubstring("unknown command"))
		})
	})
})
