package testutil

import (
	"net/http"

	id "admissions/pkg/domain"
	"admissions/pkg/requestcontext"
)

// WithUser adds a user ID and role to the request context, simulating what
// the auth middleware does for authenticated requests.
func WithUser(req *http.Request, userID id.UserID, role string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
