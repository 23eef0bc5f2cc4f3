package o365

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"sac/internal/models"
)

func fakeAzure(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1.0/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"mail":"jean.dupont@school.fr","userPrincipalName":"jdupont@school.fr","displayName":"Jean Dupont","givenName":"Jean","surname":"Dupont","jobTitle":"ELEVE","department":"T1"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *Provider {
	return New(Options{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:3000/api/auth/redirect",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		GraphURL: srv.URL,
	})
}

func TestAuthCodeURL(t *testing.T) {
	p := New(Options{ClientID: "client", TenantID: "tenant-1", RedirectURI: "http://localhost:3000/api/auth/redirect"})
	raw := p.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(u.Path, "tenant-1") {
		t.Errorf("tenant missing from %s", raw)
	}
	q := u.Query()
	if q.Get("state") != "state-123" || q.Get("client_id") != "client" {
		t.Errorf("query = %v", q)
	}
	if q.Get("scope") != "User.Read email openid profile" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestExchangeAndFetchProfile(t *testing.T) {
	srv := fakeAzure(t)
	p := testProvider(srv)
	ctx := context.Background()

	tok, err := p.Exchange(ctx, "good-code")
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.FetchProfile(ctx, tok)
	if err != nil {
		t.Fatal(err)
	}
	want := models.SourceProfile{
		Mail: "jean.dupont@school.fr", UserPrincipalName: "jdupont@school.fr",
		DisplayName: "Jean Dupont", GivenName: "Jean", Surname: "Dupont",
		JobTitle: "ELEVE", Department: "T1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestExchange_Errors(t *testing.T) {
	srv := fakeAzure(t)
	p := testProvider(srv)

	if _, err := p.Exchange(context.Background(), ""); err == nil {
		t.Error("empty code accepted")
	}
	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("rejected code accepted")
	}
}

func TestFetchProfile_Unauthorized(t *testing.T) {
	srv := fakeAzure(t)
	p := testProvider(srv)
	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "other", TokenType: "Bearer"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v", err)
	}
}
