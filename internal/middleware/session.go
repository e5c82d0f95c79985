package middleware

import (
	"net/http"

	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

type snapshotter interface {
	Snapshot() model.Snapshot
}

// RequireSession rejects requests unless a credential is held, which is the
// case while Authenticated or Refreshing.
func RequireSession(sessions snapshotter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Snapshot().State.HoldsCredential() {
				kind := apierror.KindUnauthorized
				writeJSONError(w, kind.Status(), string(kind), kind.UserMessage())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
