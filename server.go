package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"i4.energy/across/aisms/history"
)

// Deliverer sends operator text to a phone number, splitting it as needed.
type Deliverer interface {
	Deliver(ctx context.Context, to, text string) error
}

// HistoryStore is the read and delete side of the conversation store.
type HistoryStore interface {
	Get(ctx context.Context, phone string) (history.History, error)
	List(ctx context.Context) ([]history.Summary, error)
	Clear(ctx context.Context, phone string) error
}

// Server handles operator HTTP requests: sending SMS through the modem and
// inspecting conversation histories.
type Server struct {
	Logger  *slog.Logger
	Sender  Deliverer
	History HistoryStore
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string

	routesOnce sync.Once
	mux        *http.ServeMux
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.routes().ServeHTTP(w, r)
}

// routes builds the request multiplexer on first use.
func (s *Server) routes() *http.ServeMux {
	s.routesOnce.Do(func() {
		s.mux = http.NewServeMux()
		s.mux.HandleFunc("POST /sms", s.handleSMS)
		s.mux.HandleFunc("GET /conversations", s.handleListConversations)
		s.mux.HandleFunc("GET /conversations/{phone}", s.handleGetConversation)
		s.mux.HandleFunc("DELETE /conversations/{phone}", s.handleClearConversation)
	})
	return s.mux
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) == 1
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	if err := s.Sender.Deliver(r.Context(), req.To, req.Message); err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.History.List(r.Context())
	if err != nil {
		s.Logger.Error("Failed to list conversations", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []history.Summary{}
	}
	s.sendJSON(w, list, http.StatusOK)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	h, err := s.History.Get(r.Context(), phone)
	if errors.Is(err, history.ErrNotFound) {
		s.sendError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("Failed to read conversation", "error", err, "phone", phone)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, h, http.StatusOK)
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	if err := s.History.Clear(r.Context(), phone); err != nil {
		s.Logger.Error("Failed to clear conversation", "error", err, "phone", phone)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Logger.Info("Conversation cleared", "phone", phone)
	w.WriteHeader(http.StatusNoContent)
}
