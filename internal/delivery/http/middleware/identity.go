package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const holderIDKey contextKey = "holderID"

// HolderIDHeader carries the caller's identity, resolved by the gateway in
// front of this service. Requests reaching these routes are already
// authenticated; an absent header means an unauthenticated caller.
const HolderIDHeader = "X-Holder-ID"

// Identity extracts the holder id header into the request context. It does
// not reject: routes that require identity check HolderIDFromContext and
// respond 401 themselves, while public routes (signed view links, scanner
// endpoints) pass through.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HolderIDHeader)); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), holderIDKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// SetHolderID returns a context carrying the holder id, as Identity would.
func SetHolderID(ctx context.Context, holderID string) context.Context {
	return context.WithValue(ctx, holderIDKey, holderID)
}

// HolderIDFromContext returns the holder id set by Identity, if any.
func HolderIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(holderIDKey).(string)
	return id, ok
}
