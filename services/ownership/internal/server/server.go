package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"clipclaim/internal/ratelimit"
	"clipclaim/internal/util"
	"clipclaim/pkg/queue"
	"clipclaim/pkg/scraper"
	"clipclaim/services/ownership/internal/app"
)

// DeliveryQueue is the slice of the webhook queue the server needs.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, d queue.Delivery) (queue.Delivery, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Queue          DeliveryQueue
	WebhookSecret  string
	MaxUploadBytes int64
	// VerifyLimiter caps verification triggers per account; every trigger
	// costs a provider scrape job. Nil disables limiting.
	VerifyLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the ownership service.
type Server struct {
	app            *app.App
	queue          DeliveryQueue
	webhookSecret  string
	maxUploadBytes int64
	verifyLimiter  *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("webhook secret required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 200 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		queue:          cfg.Queue,
		webhookSecret:  cfg.WebhookSecret,
		maxUploadBytes: maxUploadBytes,
		verifyLimiter:  cfg.VerifyLimiter,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("ownership", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/videos", s.withUser(s.handleUploadVideo))
	s.mux.Handle("/videos/", s.withUser(s.handleVideoByID))

	s.mux.Handle("/accounts", s.withUser(s.handleLinkAccount))
	s.mux.HandleFunc("/accounts/", s.handleAccountByID)

	s.mux.HandleFunc("/reconcile", s.handleReconcile)
	s.mux.HandleFunc("/webhooks/scraper", s.handleScraperWebhook)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser extracts the caller identity. Authentication itself lives with an
// upstream gateway; this service only requires the header to be present.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleUploadVideo(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	asset, err := s.app.UploadVideo(r.Context(), app.UploadVideoInput{
		UserID:               userID,
		Platform:             r.FormValue("platform"),
		SourceURL:            r.FormValue("sourceUrl"),
		Filename:             header.Filename,
		Size:                 header.Size,
		OwnershipNotRequired: r.FormValue("ownershipNotRequired") == "true",
	}, file)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// /videos/{id} or /videos/{id}/download
func (s *Server) handleVideoByID(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/videos/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	asset, ok, err := s.app.GetVideo(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "video not found")
		return
	}
	if asset.OwnerUserID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "download" {
			notFound(w, "not found")
			return
		}
		url, err := s.app.GetDownloadURL(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate download URL")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req linkAccountRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, err := s.app.LinkAccount(userID, req.Platform, req.ProfileURL, req.Username)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// /accounts/{id} or /accounts/{id}/verify
func (s *Server) handleAccountByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/accounts/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "verify" {
			notFound(w, "not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleVerifyAccount(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	account, ok, err := s.app.GetSocialAccount(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request, id string) {
	if s.verifyLimiter != nil && !s.verifyLimiter.Allow("verify:"+id) {
		writeError(w, http.StatusTooManyRequests, "too many verification requests")
		return
	}
	account, err := s.app.RequestVerification(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"verificationCode": account.VerificationCode,
		"snapshotId":       account.SnapshotID,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.Reconcile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleScraperWebhook is the provider's push path. The payload is only
// parsed far enough to correlate it with an account; the full ingest runs
// asynchronously off the delivery queue.
func (s *Server) handleScraperWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.webhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snapshotID := scraper.ExtractSnapshotID(doc)
	if snapshotID == "" {
		writeError(w, http.StatusBadRequest, "snapshot id missing")
		return
	}
	account, ok, err := s.app.AccountBySnapshotID(snapshotID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		// Unknown or orphaned job id; acknowledge so the provider stops
		// retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "delivery queue unavailable")
		return
	}
	delivery, err := s.queue.Enqueue(r.Context(), queue.Delivery{
		AccountID:  account.ID,
		SnapshotID: snapshotID,
		Payload:    body,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "queued",
		"deliveryId": delivery.ID,
	})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	var uploadErr *app.UploadError
	var persistErr *app.PersistenceError
	var providerErr *app.ProviderError
	switch {
	case errors.Is(err, app.ErrAccountNotFound):
		notFound(w, "account not found")
	case errors.Is(err, app.ErrAssetNotFound):
		notFound(w, "video not found")
	case errors.Is(err, app.ErrAlreadyVerified):
		writeError(w, http.StatusConflict, "account already verified")
	case errors.Is(err, scraper.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "scraping provider not configured")
	case errors.Is(err, app.ErrInvalidPlatform):
		writeError(w, http.StatusBadRequest, "invalid platform")
	case errors.As(err, &uploadErr):
		writeError(w, http.StatusBadGateway, "upload failed")
	case errors.As(err, &persistErr):
		writeError(w, http.StatusInternalServerError, "failed to persist video")
	case errors.As(err, &providerErr):
		writeError(w, http.StatusBadGateway, "scraping provider error")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForOwnership(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForOwnership(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_CALLER"
	case message == "forbidden":
		return "OWNERSHIP_FORBIDDEN"
	case message == "video not found":
		return "VIDEO_NOT_FOUND"
	case message == "account not found":
		return "ACCOUNT_NOT_FOUND"
	case message == "account already verified":
		return "ACCOUNT_ALREADY_VERIFIED"
	case message == "scraping provider not configured":
		return "PROVIDER_NOT_CONFIGURED"
	case message == "scraping provider error":
		return "PROVIDER_ERROR"
	case message == "upload failed":
		return "VIDEO_UPLOAD_FAILED"
	case message == "failed to persist video":
		return "VIDEO_PERSIST_FAILED"
	case message == "invalid platform":
		return "OWNERSHIP_INVALID_PLATFORM"
	case strings.Contains(message, "file is required"):
		return "VIDEO_FILE_REQUIRED"
	case message == "invalid form data":
		return "VIDEO_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "OWNERSHIP_INVALID_REQUEST"
	case message == "snapshot id missing":
		return "WEBHOOK_SNAPSHOT_ID_MISSING"
	case message == "enqueue failed", message == "delivery queue unavailable":
		return "WEBHOOK_QUEUE_UNAVAILABLE"
	case message == "too many verification requests":
		return "VERIFY_RATE_LIMITED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "OWNERSHIP_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_CALLER"
	case http.StatusForbidden:
		return "OWNERSHIP_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

type linkAccountRequest struct {
	Platform   string `json:"platform"`
	ProfileURL string `json:"profileUrl"`
	Username   string `json:"username"`
}
