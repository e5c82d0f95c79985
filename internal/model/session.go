package model

import "thinkora-client/pkg/apierror"

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateRefreshing     State = "refreshing"
	StateExpired        State = "expired"
)

// HoldsCredential reports whether an access token may exist in state s.
func (s State) HoldsCredential() bool {
	return s == StateAuthenticated || s == StateRefreshing
}

// Snapshot is the externally observable session view.
type Snapshot struct {
	State     State              `json:"state"`
	User      *UserProfile       `json:"user"`
	LastError *apierror.APIError `json:"last_error"`
}
