/*
 * Copyright 2026 Hearthlab.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package httpapi exposes panelmux state and message dispatch to the
// panel frontend over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hearthlab/panelmux/pkg/hub"
	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/manager"
	"github.com/hearthlab/panelmux/pkg/router"
	"github.com/hearthlab/panelmux/pkg/version"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP API for one panelmux instance.
type Server struct {
	manager *manager.Manager
	router  *router.Router
	log     logger.Logger

	mux     *mux.Router
	httpSrv *http.Server
}

// NewServer wires the API routes against the given manager and message
// router.
func NewServer(mgr *manager.Manager, rtr *router.Router, apiKey string, log logger.Logger) *Server {
	s := &Server{
		manager: mgr,
		router:  rtr,
		log:     log.WithComponent("httpapi"),
		mux:     mux.NewRouter(),
	}

	s.setupRoutes(apiKey)

	return s
}

func (s *Server) setupRoutes(apiKey string) {
	s.mux.Use(commonMiddleware(s.log))

	api := s.mux.PathPrefix("/api").Subrouter()
	api.Use(apiKeyMiddleware(apiKey, s.log))

	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/entities", s.getEntities).Methods(http.MethodGet)
	api.HandleFunc("/connections", s.getConnections).Methods(http.MethodGet)
	api.HandleFunc("/message", s.postMessage).Methods(http.MethodPost)
}

// Handler exposes the routing tree, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("HTTP API listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.httpSrv.Shutdown(ctx)
}

type statusResponse struct {
	Version     string `json:"version"`
	Available   bool   `json:"available"`
	AuthExpired bool   `json:"auth_expired"`
	PrimaryID   string `json:"primary_connection_id"`
	EntityCount int    `json:"entity_count"`
	Connected   int    `json:"connected_connections"`
	Configured  int    `json:"configured_connections"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	states := s.manager.ConnectionStates()

	connected := 0

	for _, st := range states {
		if st.Connected {
			connected++
		}
	}

	resp := statusResponse{
		Version:     version.GetVersion(),
		Available:   connected > 0,
		AuthExpired: s.manager.AuthExpired(),
		PrimaryID:   s.manager.PrimaryID(),
		EntityCount: len(s.manager.Snapshot()),
		Connected:   connected,
		Configured:  len(states),
	}

	s.writeJSON(w, resp)
}

func (s *Server) getEntities(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.manager.Snapshot())
}

type connectionStatus struct {
	ID          string `json:"id"`
	Connected   bool   `json:"connected"`
	ResolvedURL string `json:"resolved_url,omitempty"`
}

func (s *Server) getConnections(w http.ResponseWriter, _ *http.Request) {
	states := s.manager.ConnectionStates()

	out := make(map[string]connectionStatus, len(states))
	for id, st := range states {
		out[id] = connectionStatus{ID: id, Connected: st.Connected, ResolvedURL: st.ResolvedURL}
	}

	s.writeJSON(w, out)
}

const maxMessageBytes = 1 << 20

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg map[string]any

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := decoder.Decode(&msg); err != nil {
		writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := s.router.Dispatch(r.Context(), msg)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	if result == nil {
		result = json.RawMessage(`null`)
	}

	s.writeJSON(w, map[string]any{"success": true, "result": result})
}

// writeDispatchError maps routing failures onto HTTP statuses: an
// unreachable hub is 503, a hub-side command rejection is 502 with the
// hub's own code passed through.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var unavailable *router.ConnectionUnavailableError
	if errors.As(err, &unavailable) {
		writeErrorCode(w, "connection_unavailable", err.Error(), http.StatusServiceUnavailable)
		return
	}

	var cmdErr *hub.CommandError
	if errors.As(err, &cmdErr) {
		writeErrorCode(w, cmdErr.Code, cmdErr.Message, http.StatusBadGateway)
		return
	}

	s.log.Error().Err(err).Msg("Message dispatch failed")
	writeError(w, "Message dispatch failed", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeErrorCode(w, "", message, statusCode)
}

func writeErrorCode(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message, Status: statusCode})
}
