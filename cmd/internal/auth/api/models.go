package authapi

import (
	"time"

	"hearth/cmd/identity"
	"hearth/cmd/internal/auth/session"
	"hearth/cmd/internal/profile"
)

type signupRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Platform   string `json:"platform"`
	RememberMe bool   `json:"remember_me"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Platform   string `json:"platform"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	RememberMe   bool   `json:"remember_me"`
	Platform     string `json:"platform"`
}

type logoutRequest struct {
	Scope string `json:"scope"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type signupResponse struct {
	User                  userResponse     `json:"user"`
	Session               *sessionResponse `json:"session,omitempty"`
	ProvisioningToken     string           `json:"provisioning_token"`
	ProvisioningExpiresAt time.Time        `json:"provisioning_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type sessionStateResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

type meResponse struct {
	User    userResponse     `json:"user"`
	Profile *profileResponse `json:"profile,omitempty"`
}

// toUserResponse reports the normalized address, the one the account is
// keyed by.
func toUserResponse(u identity.User) userResponse {
	email := u.EmailNorm
	if email == "" {
		email = identity.NormalizeEmail(u.Email)
	}
	return userResponse{ID: u.ID, Email: email, CreatedAt: u.CreatedAt}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}

func toProfileResponse(p profile.Profile) *profileResponse {
	return &profileResponse{ID: p.ID, Name: p.Name, AvatarURL: p.AvatarURL, UpdatedAt: p.UpdatedAt}
}
