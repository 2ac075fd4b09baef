package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/devfolio/accountguard/internal/models"
)

// KeycloakProvider implements Provider against the Keycloak admin REST API.
// Admin calls authenticate with a service-account token obtained via the
// client-credentials grant; the token is cached and refreshed shortly
// before expiry.
type KeycloakProvider struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	adminToken  string
	tokenExpiry time.Time
}

// keycloakUser is the admin API's user representation, reduced to the
// fields this service reads and writes.
type keycloakUser struct {
	ID            string              `json:"id,omitempty"`
	Email         string              `json:"email,omitempty"`
	EmailVerified bool                `json:"emailVerified,omitempty"`
	Enabled       *bool               `json:"enabled,omitempty"`
	FirstName     string              `json:"firstName,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

func NewKeycloakProvider(baseURL, realm, clientID, clientSecret string) *KeycloakProvider {
	return &KeycloakProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *KeycloakProvider) GetUser(ctx context.Context, id string) (*models.UserIdentity, error) {
	var ku keycloakUser
	if err := p.doJSON(ctx, http.MethodGet, p.userURL(id), nil, &ku); err != nil {
		return nil, err
	}
	ident := &models.UserIdentity{
		ID:            ku.ID,
		Email:         ku.Email,
		EmailVerified: ku.EmailVerified,
		Disabled:      ku.Enabled != nil && !*ku.Enabled,
	}
	if v := ku.Attributes["role"]; len(v) > 0 {
		ident.Role = v[0]
	}
	if v := ku.Attributes["permissions"]; len(v) > 0 {
		ident.Permissions = v
	}
	return ident, nil
}

func (p *KeycloakProvider) UpdateUser(ctx context.Context, id, email, displayName string) error {
	body := keycloakUser{Email: email, FirstName: displayName}
	return p.doJSON(ctx, http.MethodPut, p.userURL(id), body, nil)
}

func (p *KeycloakProvider) SetCustomClaims(ctx context.Context, id, role string, permissions []string) error {
	body := keycloakUser{Attributes: map[string][]string{
		"role":        {role},
		"permissions": permissions,
	}}
	return p.doJSON(ctx, http.MethodPut, p.userURL(id), body, nil)
}

func (p *KeycloakProvider) DeleteUser(ctx context.Context, id string) error {
	return p.doJSON(ctx, http.MethodDelete, p.userURL(id), nil, nil)
}

func (p *KeycloakProvider) userURL(id string) string {
	return fmt.Sprintf("%s/admin/realms/%s/users/%s", p.baseURL, p.realm, url.PathEscape(id))
}

// doJSON performs one authenticated admin call, decoding the response into
// out when out is non-nil. 404 maps to ErrUserNotFound.
func (p *KeycloakProvider) doJSON(ctx context.Context, method, u string, in, out interface{}) error {
	token, err := p.serviceToken(ctx)
	if err != nil {
		return fmt.Errorf("admin token: %w", err)
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin API returned %d: %s", resp.StatusCode, string(b))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// serviceToken returns a cached service-account access token, fetching a
// fresh one via the client-credentials grant when the cache is empty or
// within 30s of expiry.
func (p *KeycloakProvider) serviceToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adminToken != "" && time.Now().Before(p.tokenExpiry.Add(-30*time.Second)) {
		return p.adminToken, nil
	}

	tokenURL := p.baseURL + "/realms/" + p.realm + "/protocol/openid-connect/token"
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
	}
	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	p.adminToken = tr.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return p.adminToken, nil
}
