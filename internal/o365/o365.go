// Package o365 signs users in with their Office 365 account and reads
// their Graph profile.
package o365

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"sac/internal/config"
	"sac/internal/models"
)

// DefaultGraphURL is the Microsoft Graph root.
const DefaultGraphURL = "https://graph.microsoft.com"

// Scopes requested at login. User.Read is what Graph /me needs.
var Scopes = []string{"User.Read", "email", "openid", "profile"}

// Options configures a Provider. Endpoint and GraphURL default to Azure AD
// for TenantID and the public Graph.
type Options struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	Endpoint     *oauth2.Endpoint
	GraphURL     string
}

// Provider runs the authorization code flow.
type Provider struct {
	oauth    *oauth2.Config
	graphURL string
}

func New(o Options) *Provider {
	endpoint := microsoft.AzureADEndpoint(o.TenantID)
	if o.Endpoint != nil {
		endpoint = *o.Endpoint
	}
	graph := o.GraphURL
	if graph == "" {
		graph = DefaultGraphURL
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		graphURL: strings.TrimRight(graph, "/"),
	}
}

func NewFromConfig() *Provider {
	return New(Options{
		ClientID:     config.Cfg.AzureClientID,
		ClientSecret: config.Cfg.AzureClientSecret,
		TenantID:     config.Cfg.AzureTenantID,
		RedirectURI:  config.Cfg.AzureRedirectURI,
	})
}

// AuthCodeURL is where the browser is sent to sign in. state comes back
// unchanged on the redirect.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("o365: missing authorization code")
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("o365: code exchange: %w", err)
	}
	return tok, nil
}

type graphUser struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department"`
}

// FetchProfile reads GET /v1.0/me with the user's token.
func (p *Provider) FetchProfile(ctx context.Context, tok *oauth2.Token) (models.SourceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/v1.0/me", nil)
	if err != nil {
		return models.SourceProfile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return models.SourceProfile{}, fmt.Errorf("o365: graph /me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.SourceProfile{}, fmt.Errorf("o365: graph /me returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var u graphUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return models.SourceProfile{}, fmt.Errorf("o365: decoding /me: %w", err)
	}
	return models.SourceProfile{
		Mail:              u.Mail,
		UserPrincipalName: u.UserPrincipalName,
		DisplayName:       u.DisplayName,
		GivenName:         u.GivenName,
		Surname:           u.Surname,
		JobTitle:          u.JobTitle,
		Department:        u.Department,
	}, nil
}
