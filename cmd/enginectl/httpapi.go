// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/recorder"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// debugMux builds the loopback-only ambient observability surface
// (§6 "(added)"): Prometheus metrics and a JSON timeline, neither of
// which carries any job-control semantics.
func debugMux(reg *prometheus.Registry, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/timeline", timelineHandler(st))
	return mux
}

func timelineHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		now := time.Now()

		until := now
		if v := q.Get("until"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid until: "+err.Error(), http.StatusBadRequest)
				return
			}
			until = t
		}
		since := until.Add(-24 * time.Hour)
		if v := q.Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
				return
			}
			since = t
		}

		tl, err := recorder.Reconstruct(r.Context(), st, since, until, now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if vmFilter := q.Get("vm"); vmFilter != "" {
			filtered := make([]recorder.Cell, 0, len(tl.Cells))
			for _, c := range tl.Cells {
				if c.VM == vmFilter {
					filtered = append(filtered, c)
				}
			}
			tl.Cells = filtered
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tl)
	}
}
