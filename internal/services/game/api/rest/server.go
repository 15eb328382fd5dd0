// Package rest exposes the room operations over HTTP.
//
// The surface is a thin JSON layer: handlers decode the request, call the
// application service, and map domain error codes to HTTP statuses. No
// game rule lives here.
package rest

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/app"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
)

// Server routes room requests to the application service.
type Server struct {
	svc    *app.Service
	logger *log.Logger
}

// NewServer returns a REST server over the given service.
func NewServer(svc *app.Service, logger *log.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", s.createRoom)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", s.getRoom)
			r.Post("/join", s.joinRoom)
			r.Post("/start", s.startRoom)
			r.Post("/roll", s.roll)
			r.Post("/roll-complete", s.completeRoll)
			r.Post("/move", s.move)
			r.Post("/leave", s.leaveRoom)
			r.Post("/disconnect", s.disconnect)
			r.Post("/reconnect", s.reconnect)
		})
	})
	return r
}

type createRoomRequest struct {
	Mode      string `json:"mode"`
	SeatCount int    `json:"seatCount"`
	Player    string `json:"player"`
}

type playerRequest struct {
	Player string `json:"player"`
}

type moveRequest struct {
	Player string `json:"player"`
	Token  int    `json:"token"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.CreateRoom(r.Context(), room.Mode(req.Mode), req.SeatCount, req.Player)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.Player)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) startRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.StartRoom(r.Context(), chi.URLParam(r, "roomID"), req.Player)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) roll(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.Roll(r.Context(), chi.URLParam(r, "roomID"), req.Player)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) completeRoll(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.CompleteRoll(r.Context(), chi.URLParam(r, "roomID"), req.Player)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.Move(r.Context(), chi.URLParam(r, "roomID"), req.Player, req.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), req.Player); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Disconnect(r.Context(), chi.URLParam(r, "roomID"), req.Player); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Reconnect(r.Context(), chi.URLParam(r, "roomID"), req.Player); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "BAD_REQUEST",
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Printf("internal error: %v", err)
	}
	s.writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}
