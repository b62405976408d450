// Package api exposes the registration surface (destination CRUD), the
// operational status endpoints, and a websocket stream of poll events.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/poller"
	"github.com/spacewatch/backend/internal/registry"
)

type Server struct {
	registry       registry.Registry
	status         *poller.StatusStore
	broadcaster    *Broadcaster
	authToken      string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	started        time.Time
	logger         *zap.SugaredLogger
}

func NewServer(reg registry.Registry, status *poller.StatusStore, broadcaster *Broadcaster, allowedOrigins []string, authToken string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		registry:       reg,
		status:         status,
		broadcaster:    broadcaster,
		authToken:      authToken,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		started:        time.Now(),
		logger:         logger.Named("api"),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/endpoints", s.handleEndpoints)
	mux.HandleFunc("/api/endpoints/", s.handleEndpointRoutes)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/status", s.handleStatus)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("ws upgrade error", "error", err)
		return
	}

	s.logger.Infow("websocket client connected", "remote", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Infow("websocket client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// handleEndpoints serves the destination collection: GET lists (with
// an optional ?account= filter), POST registers a new destination.
func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var (
			dests []registry.Destination
			err   error
		)
		if account := r.URL.Query().Get("account"); account != "" {
			dests, err = s.registry.ListByAccount(r.Context(), account)
		} else {
			dests, err = s.registry.List(r.Context())
		}
		if err != nil {
			s.logger.Errorw("list endpoints failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if dests == nil {
			dests = []registry.Destination{}
		}
		writeJSON(w, dests)

	case http.MethodPost:
		var dest registry.Destination
		if err := json.NewDecoder(r.Body).Decode(&dest); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		dest.ID = ""
		if err := dest.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.registry.Insert(r.Context(), &dest); err != nil {
			s.logger.Errorw("insert endpoint failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.logger.Infow("endpoint registered",
			"id", dest.ID, "account", dest.Account, "kind", dest.Kind, "label", dest.Label)
		writeJSON(w, map[string]interface{}{"data": map[string]string{"id": dest.ID}})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleEndpointRoutes serves a single destination: PUT updates it,
// DELETE removes it.
func (s *Server) handleEndpointRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/endpoints/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var dest registry.Destination
		if err := json.NewDecoder(r.Body).Decode(&dest); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		dest.ID = id
		if err := dest.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.registry.Update(r.Context(), &dest); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				http.Error(w, "endpoint does not exist", http.StatusNotFound)
				return
			}
			s.logger.Errorw("update endpoint failed", "id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.logger.Infow("endpoint updated", "id", id, "account", dest.Account)
		writeJSON(w, map[string]interface{}{"data": map[string]string{"id": id}})

	case http.MethodDelete:
		if err := s.registry.Delete(r.Context(), id); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				http.Error(w, "endpoint does not exist", http.StatusNotFound)
				return
			}
			s.logger.Errorw("delete endpoint failed", "id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.logger.Infow("endpoint removed", "id", id)
		writeJSON(w, map[string]interface{}{"data": map[string]string{"id": id}})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, s.status.All())
}

// StatusPayload is the daemon self-report served by /api/status.
type StatusPayload struct {
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpuPercent"`
	RSSBytes      uint64  `json:"rssBytes"`
	WSClients     int     `json:"wsClients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	payload := StatusPayload{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		WSClients:     s.broadcaster.ClientCount(),
	}

	// Process stats are best effort; the endpoint still answers when
	// gopsutil can't read them.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			payload.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			payload.RSSBytes = mem.RSS
		}
	}

	writeJSON(w, payload)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Spacewatch-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func ListenAndServe(host string, port int, mux *http.ServeMux, logger *zap.SugaredLogger) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	logger.Infow("server listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
