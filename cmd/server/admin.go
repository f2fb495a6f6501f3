package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spawnlimiter.ai/internal/persistence/indexdb"
	"spawnlimiter.ai/internal/sim/tuning"
	"spawnlimiter.ai/internal/sim/world"
	"spawnlimiter.ai/internal/transport/ws"
)

type adminAPI struct {
	store  *tuning.Store
	bridge *ws.Server
	world  *world.World
	idx    *indexdb.SQLiteIndex
	log    zerolog.Logger
}

type configState struct {
	Version    uint64            `json:"version"`
	Path       string            `json:"path"`
	LoadedAt   time.Time         `json:"loaded_at"`
	Warnings   []string          `json:"warnings"`
	Properties tuning.Properties `json:"properties"`
	Limits     map[string]int    `json:"limits"`
	Excluded   []string          `json:"excluded_worlds"`
}

type stateResponse struct {
	Config       configState      `json:"config"`
	Sessions     []ws.SessionInfo `json:"sessions"`
	World        *world.Stats     `json:"world,omitempty"`
	IndexDropped uint64           `json:"index_dropped"`
}

func configStateOf(snap *tuning.Snapshot) configState {
	warnings := snap.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return configState{
		Version:    snap.Version,
		Path:       snap.Path,
		LoadedAt:   snap.LoadedAt,
		Warnings:   warnings,
		Properties: snap.Tuning.Properties,
		Limits:     snap.Tuning.Entities,
		Excluded:   snap.Tuning.ExcludedWorlds,
	}
}

// reload re-reads the configuration file. A failed reload keeps the active
// configuration.
func (a *adminAPI) reload() (*tuning.Snapshot, error) {
	snap, err := a.store.Reload()
	if err != nil {
		a.log.Error().Err(err).Str("config", a.store.Path()).Msg("reload failed; keeping current configuration")
		return snap, err
	}
	logWarnings(a.log, snap)
	a.log.Info().Uint64("version", snap.Version).Int("warnings", len(snap.Warnings)).Msg("configuration reloaded")
	return snap, nil
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.handleState)
	mux.HandleFunc("/admin/v1/reload", a.handleReload)
}

func (a *adminAPI) handleState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	resp := stateResponse{
		Config:       configStateOf(a.store.Current()),
		Sessions:     []ws.SessionInfo{},
		IndexDropped: a.idx.Dropped(),
	}
	if a.bridge != nil {
		resp.Sessions = a.bridge.Sessions()
	}
	if a.world != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var st world.Stats
		if err := a.world.Do(ctx, func(w *world.World) { st = w.Stats() }); err == nil {
			resp.World = &st
		}
	}
	writeJSONResponse(rw, http.StatusOK, resp)
}

func (a *adminAPI) handleReload(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	snap, err := a.reload()
	if err != nil {
		writeJSONResponse(rw, http.StatusUnprocessableEntity, map[string]any{
			"ok":      false,
			"error":   err.Error(),
			"version": snap.Version,
		})
		return
	}
	writeJSONResponse(rw, http.StatusOK, map[string]any{
		"ok":       true,
		"version":  snap.Version,
		"warnings": configStateOf(snap).Warnings,
	})
}

func writeJSONResponse(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
