// Package api exposes the workflow service over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/gorilla/mux"

	"github.com/felixgeelhaar/mutaflow/application"
	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	infraidentity "github.com/felixgeelhaar/mutaflow/infrastructure/identity"
)

// Config wires a Server.
type Config struct {
	Service *application.WorkflowService

	// Identity resolves credentials. Credential extracts them from requests
	// and defaults to the bearer token.
	Identity   identity.Provider
	Credential infraidentity.CredentialFunc

	// Replay enables GET /api/requests/{id}/audit. Optional.
	Replay *application.Replay

	// Limiter throttles callers. Optional.
	Limiter ratelimit.RateLimiter

	// Version is reported by /healthz.
	Version string
}

// Server is the HTTP front of the workflow service.
type Server struct {
	svc     *application.WorkflowService
	replay  *application.Replay
	version string
	router  *mux.Router
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: workflow service is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("api: identity provider is required")
	}
	credential := cfg.Credential
	if credential == nil {
		credential = infraidentity.BearerCredential
	}

	s := &Server{
		svc:     cfg.Service,
		replay:  cfg.Replay,
		version: cfg.Version,
		router:  mux.NewRouter(),
	}

	s.router.Use(requestLogger, authenticate(cfg.Identity, credential))
	if cfg.Limiter != nil {
		s.router.Use(rateLimit(cfg.Limiter))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: ErrorDetail{Code: "not_found", Message: "no such route"}})
	})

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	public := s.router.PathPrefix("/api").Subrouter()
	public.HandleFunc("/statuses", s.statuses).Methods(http.MethodGet)
	public.HandleFunc("/public/requests", s.publicSubmit).Methods(http.MethodPost)

	authed := s.router.PathPrefix("/api").Subrouter()
	authed.Use(requireActor)
	authed.HandleFunc("/me", s.me).Methods(http.MethodGet)
	authed.HandleFunc("/requests", s.createRequest).Methods(http.MethodPost)
	authed.HandleFunc("/requests", s.myRequests).Methods(http.MethodGet)
	authed.HandleFunc("/requests/{id}", s.getRequest).Methods(http.MethodGet)
	authed.HandleFunc("/requests/{id}", s.updateDraft).Methods(http.MethodPatch)
	authed.HandleFunc("/requests/{id}/submit", s.submit).Methods(http.MethodPost)
	authed.HandleFunc("/requests/{id}/open", s.openReview).Methods(http.MethodPost)
	authed.HandleFunc("/requests/{id}/decisions", s.decide).Methods(http.MethodPost)
	authed.HandleFunc("/requests/{id}/ineligible", s.declareIneligible).Methods(http.MethodPost)
	authed.HandleFunc("/requests/{id}/audit", s.audit).Methods(http.MethodGet)
	authed.HandleFunc("/queue", s.queue).Methods(http.MethodGet)
	authed.HandleFunc("/history", s.history).Methods(http.MethodGet)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s
}

func actorOf(r *http.Request) identity.Actor {
	actor, _ := identity.FromContext(r.Context())
	return actor
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"policy_version": s.svc.Engine().Policies().Version,
	})
}

func (s *Server) statuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"statuses": s.svc.Statuses()})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actorOf(r))
}

func (s *Server) publicSubmit(w http.ResponseWriter, r *http.Request) {
	var body PublicRequestBody
	if !decode(w, r, &body) {
		return
	}
	req, err := s.svc.CreateRequest(r.Context(), identity.Actor{}, body.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if !decode(w, r, &body) {
		return
	}
	req, err := s.svc.CreateRequest(r.Context(), actorOf(r), body.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) myRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.svc.MyRequests(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetRequest(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request) {
	var body DraftEditBody
	if !decode(w, r, &body) {
		return
	}
	req, err := s.svc.UpdateDraft(r.Context(), actorOf(r), mux.Vars(r)["id"], body.edit())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.Submit(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) openReview(w http.ResponseWriter, r *http.Request) {
	req, err := s.svc.OpenReview(r.Context(), actorOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if !decode(w, r, &body) {
		return
	}
	res, err := s.svc.Decide(r.Context(), actorOf(r), mux.Vars(r)["id"], validation.Outcome(body.Outcome), body.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) declareIneligible(w http.ResponseWriter, r *http.Request) {
	var body IneligibleBody
	if !decode(w, r, &body) {
		return
	}
	res, err := s.svc.DeclareIneligible(r.Context(), actorOf(r), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	if s.replay == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorBody{Error: ErrorDetail{Code: "unavailable", Message: "audit replay is not configured"}})
		return
	}
	actor := actorOf(r)
	if actor.Role == identity.RoleAgent {
		writeError(w, r, workflow.ErrNotRequester)
		return
	}
	report, err := s.replay.Verify(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consistent": report.Consistent(), "report": report})
}

// QueueResponse is the body of GET /api/queue.
type QueueResponse struct {
	workflow.Queue
	RefreshAfterSeconds int `json:"refresh_after_seconds"`
}

func (s *Server) queue(w http.ResponseWriter, r *http.Request) {
	q, err := s.svc.Queue(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	refresh := int(s.svc.RefreshInterval() / time.Second)
	w.Header().Set("Refresh", strconv.Itoa(refresh))
	writeJSON(w, http.StatusOK, QueueResponse{Queue: q, RefreshAfterSeconds: refresh})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
