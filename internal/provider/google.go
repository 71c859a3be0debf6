package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultGoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var ErrInvalidProviderToken = errors.New("provider: invalid token")

// Identity is what a provider vouches for. Email is verified upstream.
type Identity struct {
	Provider  string
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// Verifier checks a provider-issued token out of band.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Google validates ID tokens against the tokeninfo endpoint.
type Google struct {
	ClientID     string
	TokenInfoURL string
	HTTPClient   *http.Client
}

func NewGoogle(clientID, tokenInfoURL string) *Google {
	if tokenInfoURL == "" {
		tokenInfoURL = DefaultGoogleTokenInfoURL
	}
	return &Google{
		ClientID:     clientID,
		TokenInfoURL: tokenInfoURL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (g *Google) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidProviderToken
	}
	u, err := url.Parse(g.TokenInfoURL)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo url: %w", err)
	}
	q := u.Query()
	q.Set("id_token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidProviderToken
	}

	// tokeninfo encodes booleans as strings.
	var payload struct {
		Aud           string `json:"aud"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, ErrInvalidProviderToken
	}
	if g.ClientID != "" && payload.Aud != g.ClientID {
		return nil, ErrInvalidProviderToken
	}
	if payload.Email == "" || payload.EmailVerified != "true" {
		return nil, ErrInvalidProviderToken
	}
	return &Identity{
		Provider:  "google",
		Subject:   payload.Sub,
		Email:     strings.ToLower(payload.Email),
		FirstName: payload.GivenName,
		LastName:  payload.FamilyName,
	}, nil
}
