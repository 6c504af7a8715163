// Package chatapi exposes the conversational pipeline over HTTP: a
// streaming chat endpoint consumed by the embeddable widget, plus health
// and version routes.
package chatapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/nextlevelbuilder/convoy/internal/convo"
	"github.com/nextlevelbuilder/convoy/internal/version"
)

// Server wires the orchestrator into an http.Handler.
type Server struct {
	orchestrator *convo.Orchestrator
	mux          *http.ServeMux
}

func NewServer(o *convo.Orchestrator) *Server {
	s := &Server{orchestrator: o, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": version.Version})
}

type chatRequest struct {
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Channel        string `json:"channel"`
	UserID         string `json:"userId"`
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// handleChatStream accepts one inbound message, runs it through the
// orchestrator, and streams the outcome back as Server-Sent Events. The
// wire format is bit-exact with what the embeddable widget expects: see
// convo.SSEWriter.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req chatRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.Message == "" {
		http.Error(w, "tenantId and message are required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sse := convo.NewSSEWriter(w)
	streamed := false
	onDelta := func(delta string) {
		if err := sse.Delta(delta); err != nil {
			log.Warn().Err(err).Msg("chatapi: failed writing delta")
			return
		}
		streamed = true
		fl.Flush()
	}

	channel := convo.Channel(req.Channel)
	if channel == "" {
		channel = convo.ChannelWeb
	}

	result := s.orchestrator.Handle(r.Context(), req.TenantID, req.ConversationID, req.Message, channel, req.UserID, convo.Options{
		OnDelta: onDelta,
	})

	if err := sse.StreamResult(result, streamed); err != nil {
		log.Warn().Err(err).Msg("chatapi: failed writing terminal event")
	}
	fl.Flush()
}
