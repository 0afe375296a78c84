// Package ais is the HTTP front-end: it owns the listener, routes the
// custom SSYNC method to the receiver, and answers everything else with a
// plain 400 (request parsing boundary only, per spec §1's "out of scope"
// list -- the receiver itself lives in package ssync).
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package ais

import (
	"context"
	"log"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ais-oss/ssyncd/cmn"
	"github.com/ais-oss/ssyncd/ssync"
	"github.com/ais-oss/ssyncd/stats"
)

const (
	methodSSYNC    = "SSYNC"
	pathAdminSess  = "/_/sessions"
	pathAdminAudit = "/_/audit"
)

// httprunner is the server bootstrap, grounded on the teacher's
// httprunner/netServer split (tomzhang-aistore/ais/httpcommon.go): h2c over
// plain HTTP/1.1 so intra-cluster peers can speak either protocol without a
// TLS handshake. It also exposes the tiny admin surface ssyncctl talks to
// (the teacher's writeJSON/invalmsghdlr idiom, generalized from
// cluster-wide endpoints to this daemon's own session table).
type httprunner struct {
	mux      *http.ServeMux
	server   *http.Server
	receiver *ssync.Receiver
	stats    *stats.Registry
}

func newHTTPRunner(addr string, receiver *ssync.Receiver, reg *stats.Registry) *httprunner {
	h := &httprunner{mux: http.NewServeMux(), receiver: receiver, stats: reg}
	h.mux.Handle("/", h)
	h.mux.HandleFunc(pathAdminSess, h.handleSessions)
	h.mux.HandleFunc(pathAdminAudit, h.handleAudit)
	h.server = &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(h.mux, &http2.Server{}),
	}
	return h
}

// ServeHTTP routes the SSYNC method directly to the receiver; everything
// else is outside this repo's scope (spec §1).
func (h *httprunner) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != methodSSYNC {
		cmn.InvalidHandlerDetailed(w, r, "unsupported method "+r.Method, http.StatusBadRequest)
		return
	}
	h.receiver.ServeHTTP(w, r)
}

// handleSessions answers ssyncctl's "show sessions" with every tracked
// (device, partition) session's current counters (writeJSON, teacher-style).
func (h *httprunner) handleSessions(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, []stats.SessionStats{})
		return
	}
	writeJSON(w, h.stats.All())
}

// handleAudit answers ssyncctl's "show audit" query for one (device,
// partition)'s persisted failure history.
func (h *httprunner) handleAudit(w http.ResponseWriter, r *http.Request) {
	device, partition := r.URL.Query().Get("device"), r.URL.Query().Get("partition")
	if device == "" || partition == "" {
		cmn.InvalidHandlerDetailed(w, r, "device and partition query params are required", http.StatusBadRequest)
		return
	}
	if h.receiver.Audit == nil {
		writeJSON(w, []interface{}{})
		return
	}
	records, err := h.receiver.Audit.Records(device, partition)
	if err != nil {
		cmn.InvalidHandlerDetailed(w, r, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// ListenAndServe blocks until the server stops (Shutdown or a listener
// error), matching the teacher's netServer.listenAndServe contract.
func (h *httprunner) ListenAndServe() error {
	glog.Infof("listening on %s", h.server.Addr)
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight sessions within the configured
// cplane-operation timeout before closing the listener.
func (h *httprunner) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), cmn.GCO.Get().Timeout.CplaneOperation)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		log.Printf("ais: shutdown: %v", err)
	}
}
