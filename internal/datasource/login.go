package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

// adminProfile is the account type that can read every roster and timetable.
const adminProfile = "A"

// LoginParams are the inputs of the scripted EcoleDirecte login.
type LoginParams struct {
	BaseURL     string // API host (not APIP)
	Version     string
	UserAgent   string
	Identifiant string
	MotDePasse  string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// LoginResult is the token of the admin profile and its account id.
type LoginResult struct {
	Token      string
	UserID     string
	TypeCompte string
}

// Login runs the three-step flow: fetch the GTK cookie, post the
// credentials, then switch to the admin profile when the account opened on
// another one.
func Login(ctx context.Context, p LoginParams) (LoginResult, error) {
	if p.Identifiant == "" || p.MotDePasse == "" {
		return LoginResult{}, errors.New("datasource: ECOLEDIRECTE_IDENTIFIANT and ECOLEDIRECTE_MDP are required")
	}
	hc, err := loginClient(p)
	if err != nil {
		return LoginResult{}, err
	}
	base := strings.TrimRight(p.BaseURL, "/")
	v := url.QueryEscape(p.Version)

	gtk, err := fetchGTK(ctx, hc, p, base+"/login.awp?gtk=1&v="+v)
	if err != nil {
		return LoginResult{}, err
	}

	env, err := loginPost(ctx, hc, p, base+"/login.awp?v="+v, map[string]string{"X-Gtk": gtk}, map[string]any{
		"identifiant": p.Identifiant,
		"motdepasse":  p.MotDePasse,
		"isReLogin":   false,
		"uuid":        "",
		"fa":          []any{},
	})
	if err != nil {
		return LoginResult{}, err
	}
	token := env.Get("token").String()
	account := env.Get("data.accounts.0")
	if token == "" || !account.Exists() {
		return LoginResult{}, errors.New("datasource: login response has no token or account")
	}

	res := LoginResult{
		Token:      token,
		UserID:     account.Get("id").String(),
		TypeCompte: account.Get("typeCompte").String(),
	}
	if res.TypeCompte == adminProfile {
		return res, nil
	}

	uid := account.Get("uid").String()
	if uid == "" {
		uid = res.UserID
	}
	sw, err := loginPost(ctx, hc, p, base+"/renewtoken.awp?verbe=put&v="+v, map[string]string{"X-Token": token}, map[string]any{
		"profil": adminProfile,
		"uid":    uid,
		"uuid":   "",
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("datasource: profile switch: %w", err)
	}
	if sw.Get("token").String() == "" {
		return LoginResult{}, errors.New("datasource: profile switch returned no token")
	}
	return LoginResult{
		Token:      sw.Get("token").String(),
		UserID:     sw.Get("data.id").String(),
		TypeCompte: adminProfile,
	}, nil
}

func loginClient(p LoginParams) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if p.HTTPClient != nil {
		hc := *p.HTTPClient
		hc.Jar = jar
		return &hc, nil
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout, Jar: jar}, nil
}

// fetchGTK primes the cookie jar and returns the GTK cookie value, which
// must be echoed in the X-Gtk header of the login POST.
func fetchGTK(ctx context.Context, hc *http.Client, p LoginParams, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", p.UserAgent)
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("datasource: gtk request: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()

	for _, c := range hc.Jar.Cookies(req.URL) {
		if strings.EqualFold(c.Name, "GTK") {
			return c.Value, nil
		}
	}
	return "", errors.New("datasource: GTK cookie not found")
}

func loginPost(ctx context.Context, hc *http.Client, p LoginParams, rawURL string, headers map[string]string, body any) (gjson.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, err
	}
	form := url.Values{"data": {string(payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &httpStatusError{Path: req.URL.Path, Status: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return gjson.Result{}, err
	}
	return decodeEnvelope(req.URL.Path, raw)
}
