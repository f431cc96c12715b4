package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"hearth/cmd/internal/client/profile"
)

type createProfileRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type patchProfileRequest struct {
	Name *string `json:"name,omitempty"`
}

// CreateProfile uses the access token, or the provisioning token of a fresh
// sign-up when no session is held.
func (c *Client) CreateProfile(ctx context.Context, principalID, name string) error {
	req := createProfileRequest{ID: principalID, Name: strings.TrimSpace(name)}
	err := c.profileCall(ctx, http.MethodPost, "/rest/profiles/", principalID, req, nil)
	if IsStatus(err, http.StatusConflict) {
		return &profile.DuplicateKeyError{PrincipalID: principalID}
	}
	return err
}

func (c *Client) UpdateProfileName(ctx context.Context, principalID, name string) error {
	n := strings.TrimSpace(name)
	err := c.profileCall(ctx, http.MethodPatch, profilePath(principalID), principalID, patchProfileRequest{Name: &n}, nil)
	if IsStatus(err, http.StatusNotFound) {
		return profile.ErrNotFound
	}
	return err
}

func (c *Client) GetProfile(ctx context.Context, principalID string) (profile.Profile, error) {
	var out wireProfile
	err := c.profileCall(ctx, http.MethodGet, profilePath(principalID), principalID, nil, &out)
	switch {
	case IsStatus(err, http.StatusNotFound):
		return profile.Profile{}, profile.ErrNotFound
	case err != nil:
		return profile.Profile{}, err
	}
	p := profile.Profile{ID: out.ID, Name: out.Name, CreatedAt: out.CreatedAt, UpdatedAt: out.UpdatedAt}
	if out.AvatarURL != nil {
		p.AvatarURL = *out.AvatarURL
	}
	return p, nil
}

func profilePath(principalID string) string { return "/rest/profiles/" + url.PathEscape(principalID) }

func (c *Client) profileCall(ctx context.Context, method, path, principalID string, in, out any) error {
	if t := c.Tokens(); t.AccessToken != "" && t.UserID == principalID {
		return c.authed(ctx, method, path, in, out)
	}
	bearer := c.profileBearer(principalID)
	if bearer == "" {
		return ErrNotSignedIn
	}
	_, err := c.call(ctx, method, path, bearer, in, out)
	return err
}

// profileBearer returns the live provisioning token issued for principalID.
func (c *Client) profileBearer(principalID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prov.userID == principalID && c.prov.token != "" && c.now().Before(c.prov.expiresAt) {
		return c.prov.token
	}
	return ""
}
