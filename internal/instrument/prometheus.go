// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument exposes the session client prometheus metrics.
package instrument

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbactory_session_exchanges_total",
			Help: "Number of session exchanges by request mode and result",
		},
		[]string{"mode", "status"},
	)
	replayMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedbactory_session_replay_mismatches_total",
			Help: "Number of encrypted responses carrying an unexpected counter",
		},
	)
	forcedSignOuts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedbactory_session_forced_sign_outs_total",
			Help: "Number of sessions torn down after the server rejected them",
		},
	)
	restores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbactory_session_restores_total",
			Help: "Number of persisted session restore attempts by outcome",
		},
		[]string{"outcome"},
	)
	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedbactory_transport_request_duration_seconds",
			Help:    "Round trip time of requests to the application server",
			Buckets: prometheus.DefBuckets,
		},
	)

	registerOnce sync.Once
)

// Init registers the metrics and, if address is not empty, serves them on
// /metrics.  The returned server is nil when address is empty.  Failing to
// bind address is an error.
func Init(address string) (*http.Server, error) {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges)
		prometheus.MustRegister(replayMismatches)
		prometheus.MustRegister(forcedSignOuts)
		prometheus.MustRegister(restores)
		prometheus.MustRegister(requestDuration)
	})
	if address == "" {
		return nil, nil
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("instrument: failed to listen on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

// Exchange counts a completed session exchange.
func Exchange(mode, status string) {
	exchanges.With(prometheus.Labels{"mode": mode, "status": status}).Inc()
}

// ReplayMismatch counts a rejected response counter.
func ReplayMismatch() {
	replayMismatches.Inc()
}

// ForcedSignOut counts a server initiated session teardown.
func ForcedSignOut() {
	forcedSignOuts.Inc()
}

// Restore counts a persisted session restore attempt.
func Restore(outcome string) {
	restores.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RequestDuration records the round trip time of a request.
func RequestDuration(d time.Duration) {
	requestDuration.Observe(d.Seconds())
}
