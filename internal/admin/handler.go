// Package admin serves operator-only lookups. Routes must be mounted behind
// RequireAuth and RequireRole(ADMIN).
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"admissions/pkg/platform/audit"
	"admissions/pkg/platform/httputil"
	request "admissions/pkg/platform/middleware/request"

	dErrors "admissions/pkg/domain-errors"
)

// AuditReader lists audit entries for an entity.
type AuditReader interface {
	ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
}

type Handler struct {
	audits AuditReader
	logger *slog.Logger
}

func New(audits AuditReader, logger *slog.Logger) *Handler {
	return &Handler{audits: audits, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.handleListAudit)
}

var entityTypes = map[string]bool{
	audit.EntityUser:        true,
	audit.EntityApplication: true,
	audit.EntityPayment:     true,
}

// handleListAudit serves GET /admin/audit?entity_id=...&entity_type=payment.
// entity_type defaults to payment.
func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	entityID := strings.TrimSpace(q.Get("entity_id"))
	if entityID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entity_id is required"))
		return
	}
	entityType := strings.ToLower(strings.TrimSpace(q.Get("entity_type")))
	if entityType == "" {
		entityType = audit.EntityPayment
	}
	if !entityTypes[entityType] {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown entity_type %q", entityType))
		return
	}

	entries, err := h.audits.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list audit entries failed",
			"request_id", request.GetRequestID(ctx),
			"entity_id", entityID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries"))
		return
	}

	out := make([]*AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, &AuditEntryResponse{
			ID:         e.ID.String(),
			Actor:      e.Actor,
			Action:     string(e.Action),
			Category:   string(e.Action.Category()),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			OldValues:  e.OldValues,
			NewValues:  e.NewValues,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			Client:     e.Client,
			RequestID:  e.RequestID,
			Timestamp:  e.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, AuditListResponse{Entries: out, Total: len(out)})
}
