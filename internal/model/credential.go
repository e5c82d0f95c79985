package model

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the token set held for the signed-in principal.
// RefreshToken is empty when the server did not issue one; a zero
// ExpiresAt means the expiry is unknown.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewCredential builds a Credential and fills IssuedAt/ExpiresAt from the
// access token's iat/exp claims when it is a JWT. The signature is not
// checked: the client never holds the signing key and the server remains
// the judge of validity.
func NewCredential(accessToken string, refreshToken string, fallbackIssued time.Time) Credential {
	cred := Credential{
		AccessToken:  strings.TrimSpace(accessToken),
		RefreshToken: strings.TrimSpace(refreshToken),
		IssuedAt:     fallbackIssued.UTC(),
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.AccessToken, claims); err != nil {
		return cred
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		cred.IssuedAt = iat.UTC()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cred.ExpiresAt = exp.UTC()
	}

	return cred
}

func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires before now+skew.
// Always false when the expiry is unknown.
func (c Credential) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// UserProfile is a cached, best-effort view of the signed-in user.
type UserProfile struct {
	ID          string `json:"id,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

type RegistrationFields struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
