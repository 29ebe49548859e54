// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package eventloop is the C8 capability: a single-thread cooperative
// loop keyed by an in-memory map of named events (§4.5). It has no
// third-party dependencies — see DESIGN.md for why this one component
// stays on container/heap and time.Timer rather than a cron or timer
// library from the rest of the corpus.
package eventloop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// SafetyNet is the delay RunEvents returns when no event is pending,
// matching the scheduler pass's own arm-next-tick default (§4.5
// "default safety-net 600s").
const SafetyNet = 600 * time.Second

// MinDelay is the smallest delay RunEvents ever returns, so a
// misconfigured zero-Timeout repeat event can't busy-loop the engine.
const MinDelay = time.Second

// Handler is invoked when its Event comes due. now is the tick's
// reference time, not time.Now(), so handlers observe a consistent
// clock for the whole tick.
type Handler func(ctx context.Context, now time.Time)

// Event is one named, schedulable unit of work (§4.5).
type Event struct {
	Name    string
	Expires time.Time
	Timeout time.Duration
	Repeat  bool
	Handler Handler
}

// Loop holds the named events. The zero value is not usable; use New.
// A Loop is safe for concurrent use: handlers run on the goroutine
// that calls RunEvents, but Add/Remove may be called from elsewhere
// (e.g. the control channel scheduling an immediate wake-up) between
// ticks.
type Loop struct {
	mu     sync.Mutex
	events map[string]*Event
	wake   chan struct{}
}

// New returns an empty Loop.
func New() *Loop {
	return &Loop{events: make(map[string]*Event), wake: make(chan struct{}, 1)}
}

// Add installs or replaces the named event, and wakes Run if it is
// currently blocked in its select (§5: "the engine suspends only in
// the event-loop select call").
func (l *Loop) Add(e Event) {
	l.mu.Lock()
	cp := e
	l.events[e.Name] = &cp
	l.mu.Unlock()
	l.signalWake()
}

// Remove deletes the named event, if present. Safe to call from a
// handler currently running inside RunEvents, including to remove
// itself or another event due later in the same tick.
func (l *Loop) Remove(name string) {
	l.mu.Lock()
	delete(l.events, name)
	l.mu.Unlock()
	l.signalWake()
}

func (l *Loop) signalWake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is canceled: it calls RunEvents, then
// suspends until the returned delay elapses, ctx is done, or Add/Remove
// wakes it early because a sooner event was just scheduled.
func (l *Loop) Run(ctx context.Context) error {
	log := obslog.FromContext(ctx, "component", "eventloop")
	for {
		delay := l.RunEvents(ctx, time.Now())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("event loop stopping")
			return ctx.Err()
		case <-timer.C:
		case <-l.wake:
			timer.Stop()
		}
	}
}

// Trigger brings the named event's Expires forward to now, preserving
// its Handler/Timeout/Repeat, and wakes Run. Used by the control
// channel's reschedulejobs/vmstatuschange commands to force an
// immediate pass without knowing (or overwriting) the scheduler's own
// handler. Reports false if no such event is scheduled.
func (l *Loop) Trigger(name string, now time.Time) bool {
	l.mu.Lock()
	e, ok := l.events[name]
	if ok {
		next := *e
		next.Expires = now
		l.events[name] = &next
	}
	l.mu.Unlock()
	if ok {
		l.signalWake()
	}
	return ok
}

// Has reports whether name is currently scheduled.
func (l *Loop) Has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.events[name]
	return ok
}

// eventHeap orders a snapshot of events by Expires, earliest first,
// via container/heap so RunEvents can pull them out in due order
// without a full sort.Slice of the whole map on every tick.
type eventHeap []*Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].Expires.Before(h[j].Expires) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)         { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// RunEvents executes one tick (§4.5): take a snapshot of the current
// events sorted by Expires, then walk it in order. An event removed by
// an earlier handler this tick (by itself or another) is skipped. The
// first not-yet-due event stops the walk, since the snapshot is
// sorted. Repeating events have their Expires advanced by Timeout
// before their handler runs; one-shot events are removed first. It
// returns the delay until the next due event, clamped to
// [MinDelay, SafetyNet] when nothing is scheduled sooner.
func (l *Loop) RunEvents(ctx context.Context, now time.Time) time.Duration {
	log := obslog.FromContext(ctx, "component", "eventloop")

	l.mu.Lock()
	h := make(eventHeap, 0, len(l.events))
	for _, e := range l.events {
		h = append(h, e)
	}
	heap.Init(&h)
	l.mu.Unlock()

	for h.Len() > 0 {
		e := heap.Pop(&h).(*Event)

		l.mu.Lock()
		cur, ok := l.events[e.Name]
		if !ok || cur != e {
			// Removed (or replaced by an Add) by an earlier handler
			// this tick; the snapshot entry is stale.
			l.mu.Unlock()
			continue
		}
		if e.Expires.After(now) {
			l.mu.Unlock()
			break
		}
		if e.Repeat {
			next := *e
			next.Expires = now.Add(e.Timeout)
			l.events[e.Name] = &next
		} else {
			delete(l.events, e.Name)
		}
		l.mu.Unlock()

		log.V(1).Info("event due", "name", e.Name)
		e.Handler(ctx, now)
	}

	return l.nextDelay(now)
}

// nextDelay computes the arm-next-tick delay from the current event
// set, without consuming it.
func (l *Loop) nextDelay(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	delay := SafetyNet
	for _, e := range l.events {
		if d := e.Expires.Sub(now); d < delay {
			delay = d
		}
	}
	if delay < MinDelay {
		delay = MinDelay
	}
	return delay
}
