package www

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/angas/pvpc-go/config"
	"github.com/angas/pvpc-go/logging"
	"github.com/angas/pvpc-go/pvpc"
	"github.com/angas/pvpc-go/slice"
	"github.com/angas/pvpc-go/types"
)

// Server exposes the current sensor states as JSON and pushes refreshed
// states to websocket subscribers after each update cycle.
type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	handler *pvpc.Handler
	holder  *pvpc.DataHolder
	memLog  *logging.MemoryHandler
	hub     *Hub
	mux     *http.ServeMux
}

type sensorState struct {
	Sensor     string         `json:"sensor"`
	State      *float64       `json:"state"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func NewServer(handler *pvpc.Handler, holder *pvpc.DataHolder, memLog *logging.MemoryHandler, cnfg config.AppConfigApi) *Server {
	logger := slog.Default().With("module", "www")
	s := &Server{
		logger:  logger,
		config:  cnfg,
		handler: handler,
		holder:  holder,
		memLog:  memLog,
		hub:     NewHub(logger),
		mux:     http.NewServeMux(),
	}
	go s.hub.Run()

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("/states", logReqMW(http.HandlerFunc(s.handleStates)))
	s.mux.Handle("/log", logReqMW(http.HandlerFunc(s.handleLog)))
	s.mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		client, err := NewClient(s.hub, w, r, r.Header.Get("User-Agent"))
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		s.hub.register <- client
		go client.WritePump()
	})

	return s
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.statesPayload()); err != nil {
		s.logger.Error("failed to encode states", slog.Any("error", err))
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.memLog.Entries()); err != nil {
		s.logger.Error("failed to encode log entries", slog.Any("error", err))
	}
}

func (s *Server) statesPayload() map[string]any {
	var keys []types.SensorKey
	var lastUpdate time.Time
	var source types.DataSource
	if data := s.holder.Get(); data != nil {
		for key := range data.Sensors {
			keys = append(keys, key)
		}
		lastUpdate = data.LastUpdate
		source = data.DataSource
	}

	states := slice.Map(keys, func(key types.SensorKey) sensorState {
		state := s.handler.State(key)
		ss := sensorState{
			Sensor:     string(key),
			Available:  state.IsValid(),
			Attributes: s.handler.Attributes(key),
		}
		if state.IsValid() {
			value := state.Value()
			ss.State = &value
		}
		return ss
	})

	return map[string]any{
		"last_update": lastUpdate,
		"data_source": source,
		"attribution": s.handler.Attribution(),
		"sensors":     states,
	}
}

// BroadcastStates pushes the current states to all websocket clients.
// Called by the update task after a cycle that brought new data.
func (s *Server) BroadcastStates() {
	payload, err := json.Marshal(s.statesPayload())
	if err != nil {
		s.logger.Error("failed to marshal broadcast payload", slog.Any("error", err))
		return
	}
	s.hub.broadcast <- payload
}

func (s *Server) Run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	s.logger.Info("starting server...", slog.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: s.mux}

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", slog.Any("error", err))
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
		}
	}
}
