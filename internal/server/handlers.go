package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kryodeploy/internal/deployment"
	"kryodeploy/internal/history"
	"kryodeploy/internal/metrics"
	"kryodeploy/internal/security"
	"kryodeploy/internal/webhook"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	MaxListLimit = 100

	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// HandleWebhook handles GitHub push deliveries
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readJSONBody(w, r, true)
	if !ok {
		s.Metrics.Webhook(metrics.ResultMalformed)
		return
	}

	logger := s.Logger.With("delivery", r.Header.Get(HeaderDelivery))

	signature := r.Header.Get(HeaderSignature)
	if err := s.Verifier.Verify(body, signature); err != nil {
		logger.Warn("Rejected webhook", "error", err, "ip", r.RemoteAddr)
		s.Metrics.Webhook(metrics.ResultRejected)
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}
	if signature == "" {
		logger.Warn("Accepted unsigned webhook because allow_unsigned is set")
	}

	event := r.Header.Get(HeaderEvent)
	if decision := s.Filter.CheckEvent(event); !decision.Proceed {
		logger.Info("Ignoring webhook", "event", event, "reason", decision.Reason)
		s.Metrics.Webhook(metrics.ResultIgnored)
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":   "Event ignored",
			"status":    "ignored",
			"reason":    decision.Reason,
			"timestamp": timestamp(),
		})
		return
	}

	push, err := webhook.ParsePush(body)
	if err != nil {
		logger.Warn("Malformed webhook payload", "error", err)
		s.Metrics.Webhook(metrics.ResultMalformed)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if decision := s.Filter.Evaluate(event, push.Ref); !decision.Proceed {
		logger.Info("Ignoring webhook", "ref", push.Ref, "reason", decision.Reason)
		s.Metrics.Webhook(metrics.ResultIgnored)
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":   "Not a production branch, skipping",
			"status":    "ignored",
			"reason":    decision.Reason,
			"ref":       push.Ref,
			"sha":       push.SHA,
			"timestamp": timestamp(),
		})
		return
	}

	s.startDeploy(w, r, deployment.Request{
		Ref:     push.Ref,
		SHA:     push.SHA,
		Trigger: history.TriggerWebhook,
	})
}

type manualDeployRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// HandleDeploy handles manual deploy requests authenticated with the cron secret
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !security.SecretsEqual(s.Config.CronSecret, strings.TrimSpace(token)) {
		s.Logger.Warn("Rejected manual deploy", "ip", r.RemoteAddr)
		s.Metrics.Webhook(metrics.ResultRejected)
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	body, ok := s.readJSONBody(w, r, false)
	if !ok {
		return
	}

	var req manualDeployRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
			return
		}
	}

	if req.Ref == "" {
		req.Ref = "refs/heads/" + s.Config.Branch
	}
	if !s.Filter.MatchesRef(req.Ref) {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Ref is not a production branch",
			"reason": webhook.ReasonInvalidRef,
		})
		return
	}
	if req.SHA != "" {
		if err := security.ValidateSHA(req.SHA); err != nil {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	s.startDeploy(w, r, deployment.Request{
		Ref:     req.Ref,
		SHA:     req.SHA,
		Trigger: history.TriggerManual,
	})
}

func (s *Server) startDeploy(w http.ResponseWriter, r *http.Request, req deployment.Request) {
	task, err := s.Deployer.Start(r.Context(), req)
	if errors.Is(err, deployment.ErrDeployInProgress) {
		s.Logger.Warn("Deployment already in progress, rejecting", "ref", req.Ref, "trigger", req.Trigger)
		s.Metrics.Webhook(metrics.ResultBusy)
		s.respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "Deployment already in progress",
			"status": "rejected",
		})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to start deployment", "ref", req.Ref, "error", err)
		s.Metrics.Webhook(metrics.ResultError)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to start deployment"})
		return
	}

	s.Logger.Info("Deployment accepted", "deploy_id", task.ID, "ref", task.Ref, "sha", task.SHA, "trigger", task.Trigger)
	s.Metrics.Webhook(metrics.ResultAccepted)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Deployment started",
		"status":        "accepted",
		"id":            task.ID,
		"ref":           task.Ref,
		"sha":           task.SHA,
		"timestamp":     task.StartedAt.Format(time.RFC3339),
		"deploy_method": task.Method,
	})
}

// readJSONBody enforces the size limit and, when requireJSON is set, the
// content type. It writes the error response itself.
func (s *Server) readJSONBody(w http.ResponseWriter, r *http.Request, requireJSON bool) ([]byte, bool) {
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return nil, false
	}

	if requireJSON || r.ContentLength > 0 {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
			return nil, false
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read payload"})
		return nil, false
	}
	if len(body) > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return nil, false
	}

	return body, true
}

// HandleHealth handles liveness checks
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   s.Config.Service,
		"timestamp": timestamp(),
		"port":      s.Config.Port,
		"version":   s.Version,
	})
}

// HandleStatus reports the service state and the real outcome of the last deploy
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.Store.Latest(r.Context(), s.Config.Service)
	if err != nil {
		s.Logger.Error("Failed to get latest deployment", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":            s.Config.Service,
		"status":             "running",
		"version":            s.Version,
		"features":           s.Config.Features(),
		"branches":           s.Filter.Branches,
		"deploy_in_progress": s.Deployer.InProgress(),
		"last_deploy":        last,
		"timestamp":          timestamp(),
	})
}

// HandleListDeploys returns recent deploys, newest first
func (s *Server) HandleListDeploys(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxListLimit)
	}

	tasks, err := s.Store.List(r.Context(), s.Config.Service, limit)
	if err != nil {
		s.Logger.Error("Failed to list deployments", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployments"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"deploys": tasks,
		"count":   len(tasks),
	})
}

// HandleGetDeploy returns a single deploy
func (s *Server) HandleGetDeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.Store.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown deploy"})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to get deployment", "error", err, "deploy_id", id)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment"})
		return
	}

	s.respondJSON(w, http.StatusOK, task)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
