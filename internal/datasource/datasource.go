package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sac/internal/config"
	"sac/internal/logger"
)

// ErrTokenExpired matches any APIError carrying one of the codes
// EcoleDirecte uses for an expired or revoked X-Token.
var ErrTokenExpired = errors.New("datasource: ecoledirecte token expired")

// APIError is a well-formed EcoleDirecte envelope whose code is not 200.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("datasource: %s returned code %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("datasource: %s returned code %d", e.Endpoint, e.Code)
}

func (e *APIError) Is(target error) bool {
	return target == ErrTokenExpired && (e.Code == 520 || e.Code == 525)
}

// Endpoint paths on the APIP host.
const (
	pathNiveauxAll  = "/niveauxListeAll.awp"
	pathNiveaux     = "/niveauxListe.awp"
	pathEleves      = "/classes/%s/eleves.awp?recupAll=1"
	pathElevesAll   = "/messagerie/contacts/eleves.awp"
	pathProfesseurs = "/messagerie/contacts/professeurs.awp"
	pathPersonnels  = "/messagerie/contacts/personnels.awp"
	pathSalles      = "/salles.awp"
	pathEDT         = "/C/%s/emploidutemps.awp"
	pathMessages    = "/enseignants/%s/messages.awp?typeRecuperation=received&orderBy=date&order=desc&onlyRead=0&getAll=1"
)

const maxBodySize = 8 * 1024 * 1024

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL     string
	Version     string
	UserAgent   string
	UserID      string
	Timeout     time.Duration
	Credentials CredentialProvider
	Location    *time.Location
	MaxAttempts int
	RetryDelay  time.Duration
	HTTPClient  *http.Client
}

// Client reads the EcoleDirecte directory and timetables.
type Client struct {
	baseURL   string
	version   string
	userAgent string
	userID    string
	http      *http.Client
	creds     CredentialProvider
	loc       *time.Location
	attempts  uint
	delay     time.Duration
}

// New creates a Client from explicit options.
func New(o Options) *Client {
	hc := o.HTTPClient
	if hc == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	attempts := o.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:   strings.TrimRight(o.BaseURL, "/"),
		version:   o.Version,
		userAgent: o.UserAgent,
		userID:    o.UserID,
		http:      hc,
		creds:     o.Credentials,
		loc:       loc,
		attempts:  uint(attempts),
		delay:     o.RetryDelay,
	}
}

// NewFromConfig creates a Client from config.Cfg. Credentials come from
// ECOLEDIRECTE_USER_TOKEN when set, otherwise from a scripted login.
func NewFromConfig() *Client {
	c := config.Cfg
	var creds CredentialProvider
	if c.EDUserToken != "" {
		creds = NewStaticCredentials(c.EDUserToken)
	} else {
		creds = NewLoginCredentials(LoginParams{
			BaseURL:     c.EDApiBaseURL,
			Version:     c.EDApiVersion,
			UserAgent:   c.UserAgent,
			Identifiant: c.EDIdentifiant,
			MotDePasse:  c.EDMotDePasse,
			Timeout:     c.UpstreamTimeout,
		})
	}
	return New(Options{
		BaseURL:     c.EDApipBaseURL,
		Version:     c.EDApiVersion,
		UserAgent:   c.UserAgent,
		UserID:      c.EDUserID,
		Timeout:     c.UpstreamTimeout,
		Credentials: creds,
		Location:    c.Location(),
		MaxAttempts: c.RetryMaxAttempts,
		RetryDelay:  c.RetryDelay,
	})
}

// Location is the zone timetable strings are interpreted in.
func (c *Client) Location() *time.Location { return c.loc }

// fetch POSTs body to path and returns the envelope's data member. Token
// expiry and transport failures are retried per the client's policy.
func (c *Client) fetch(ctx context.Context, path string, body any) (gjson.Result, error) {
	payload := []byte("{}")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, err
		}
		payload = b
	}

	var data gjson.Result
	err := c.withRetry(ctx, path, func(token string) error {
		raw, err := c.post(ctx, path, token, payload)
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(path, raw)
		if err != nil {
			return err
		}
		data = env.Get("data")
		return nil
	})
	return data, err
}

func (c *Client) post(ctx context.Context, path, token string, payload []byte) ([]byte, error) {
	form := url.Values{"data": {string(payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{Path: path, Status: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

func (c *Client) endpoint(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.baseURL + path + sep + "verbe=get&v=" + url.QueryEscape(c.version)
}

// decodeEnvelope checks the {code, message, token, data} wrapper.
func decodeEnvelope(path string, raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("datasource: %s returned a non JSON body", path)
	}
	env := gjson.ParseBytes(raw)
	code := env.Get("code")
	if !code.Exists() {
		return gjson.Result{}, fmt.Errorf("datasource: %s returned no envelope code", path)
	}
	if code.Int() != 200 {
		return gjson.Result{}, &APIError{Endpoint: path, Code: int(code.Int()), Message: env.Get("message").String()}
	}
	return env, nil
}

type httpStatusError struct {
	Path   string
	Status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("datasource: HTTP %d from %s", e.Status, e.Path)
}

func logFetch(path string, start time.Time, err error) {
	fields := map[string]interface{}{"endpoint": path, "elapsed_ms": time.Since(start).Milliseconds()}
	if err != nil {
		fields["error"] = err.Error()
		logger.Warn("datasource: request failed", fields)
		return
	}
	logger.Debug("datasource: request done", fields)
}
