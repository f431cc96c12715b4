package gateway

import (
	"time"

	"hearth/cmd/internal/client/session"
)

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Platform   string `json:"platform,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	RememberMe   bool   `json:"remember_me,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

type logoutRequest struct {
	Scope string `json:"scope"`
}

type wireUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (u wireUser) principal() session.Principal {
	return session.Principal{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

type wireSession struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type signupResponse struct {
	User                  wireUser     `json:"user"`
	Session               *wireSession `json:"session"`
	ProvisioningToken     string       `json:"provisioning_token"`
	ProvisioningExpiresAt time.Time    `json:"provisioning_expires_at"`
}

type loginResponse struct {
	User    wireUser    `json:"user"`
	Session wireSession `json:"session"`
}

type refreshResponse struct {
	Session wireSession `json:"session"`
}

type sessionStateResponse struct {
	User      wireUser  `json:"user"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type wireProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func tokensFrom(u wireUser, s wireSession) Tokens {
	return Tokens{
		UserID:           u.ID,
		Email:            u.Email,
		UserCreatedAt:    u.CreatedAt,
		SessionID:        s.SessionID,
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}
