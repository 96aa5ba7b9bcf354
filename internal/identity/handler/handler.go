package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"admissions/internal/identity/service"
	"admissions/pkg/platform/httputil"
	request "admissions/pkg/platform/middleware/request"
)

// Service defines the interface for account operations.
type Service interface {
	Register(ctx context.Context, email, password string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
}

// Handler serves registration and login.
type Handler struct {
	identity Service
	logger   *slog.Logger
}

func New(identity Service, logger *slog.Logger) *Handler {
	return &Handler{identity: identity, logger: logger}
}

// Register registers the public auth routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, http.StatusCreated, h.identity.Register)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, http.StatusOK, h.identity.Login)
}

func (h *Handler) handleCredentials(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	fn func(ctx context.Context, email, password string) (*service.Session, error),
) {
	ctx := r.Context()
	var req credentialsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := fn(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "credential request rejected",
			"path", r.URL.Path,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, status, sessionResponse{
		UserID:      session.User.ID.String(),
		Email:       session.User.Email,
		Role:        string(session.User.Role),
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(session.ExpiresIn.Seconds()),
	})
}
