package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-arcgis/core"
	"github.com/goliatone/go-arcgis/endpoint"
	"github.com/goliatone/go-arcgis/transport"
)

// serverInfo is the subset of the /rest/info document the login flow needs.
// A nil AuthInfo means the server did not report its auth scheme.
type serverInfo struct {
	OwningSystemURL string `json:"owningSystemUrl"`
	AuthInfo        *struct {
		IsTokenBasedSecurity bool   `json:"isTokenBasedSecurity"`
		TokenServicesURL     string `json:"tokenServicesUrl"`
	} `json:"authInfo"`
}

// loginPayload is the wire shape of a successful token grant: the token
// itself, its expiry as epoch milliseconds, and whether the server mandates
// SSL for requests carrying it.
type loginPayload struct {
	Token   string  `json:"token"`
	Expires float64 `json:"expires"`
	SSL     bool    `json:"ssl"`
}

type AuthenticatorConfig struct {
	Adapter core.TransportAdapter
	Cache   *Cache
	Logger  core.Logger
	// Expiration is the token lifetime requested during a login exchange.
	Expiration time.Duration
	// Timeout bounds each network call of the login flow.
	Timeout   time.Duration
	VerifySSL bool
}

// Authenticator performs the token acquisition flow: cached reuse, server
// info discovery, the login exchange, and the federated-server token swap.
type Authenticator struct {
	adapter    core.TransportAdapter
	cache      *Cache
	logger     core.Logger
	expiration time.Duration
	timeout    time.Duration
	verifySSL  bool
}

func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = core.DefaultTokenExpiration
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache(CacheConfig{})
	}
	adapter := cfg.Adapter
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Authenticator{
		adapter:    adapter,
		cache:      cache,
		logger:     cfg.Logger,
		expiration: expiration,
		timeout:    cfg.Timeout,
		verifySSL:  cfg.VerifySSL,
	}
}

// Cache exposes the underlying store, letting the owning client invalidate
// entries on credential change.
func (a *Authenticator) Cache() *Cache {
	return a.cache
}

// Request identifies the endpoint and credentials for one token lookup.
type Request struct {
	Kind       endpoint.Kind
	URL        string
	Credential core.Credential
	PublicHost string
}

// Token returns a bearer token for the request, reusing a cached one when it
// retains sufficient lifetime. Anonymous requests return a zero token and
// perform no network calls.
func (a *Authenticator) Token(ctx context.Context, req Request) (core.Token, error) {
	if req.Credential.IsZero() {
		return core.Token{}, nil
	}
	if !req.Kind.Valid() {
		return core.Token{}, core.NewBadInputError(`tokens: kind must be one of ["portal", "server", "geoevent"]`)
	}

	base, err := endpoint.DeriveBaseURL(req.URL)
	if err != nil {
		return core.Token{}, err
	}
	key := Key{BaseURL: base, Username: req.Credential.Username}

	// Fast path: a still-valid entry needs no lock beyond the store's own.
	if entry, ok := a.cache.Lookup(key); ok {
		return entry.toToken(), nil
	}

	var entry Entry
	switch req.Kind {
	case endpoint.KindGeoEvent:
		entry, err = a.cache.Fill(key, func() (Entry, error) {
			return a.geoEventLogin(ctx, req)
		})
	default:
		entry, err = a.cache.Fill(key, func() (Entry, error) {
			return a.login(ctx, req, base)
		})
	}
	if err != nil {
		return core.Token{}, err
	}
	return entry.toToken(), nil
}

// login runs the portal/server flow: discover the token service, reuse any
// token already minted by it, otherwise perform the exchange, and swap for a
// server token when the server is federated to a portal.
func (a *Authenticator) login(ctx context.Context, req Request, base string) (Entry, error) {
	info, tokenURL, err := a.discoverTokenService(ctx, req, base)
	if err != nil {
		return Entry{}, err
	}

	tokenBase, err := endpoint.DeriveBaseURL(tokenURL)
	if err != nil {
		return Entry{}, err
	}
	tokenKey := Key{BaseURL: tokenBase, Username: req.Credential.Username}

	entry, ok := a.cache.Lookup(tokenKey)
	if !ok {
		referer, refErr := endpoint.DeriveRefererURL(req.URL)
		if refErr != nil {
			return Entry{}, refErr
		}
		entry, err = a.generateToken(ctx, tokenURL, req.Credential, referer)
		if err != nil {
			return Entry{}, err
		}
		a.cache.Store(tokenKey, entry)
	}

	if req.Kind == endpoint.KindServer && info.OwningSystemURL != "" {
		entry, err = a.swapForServerToken(ctx, tokenURL, req.URL, entry.Token, req.Credential.Username)
		if err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

// geoEventLogin goes up to the co-hosted server instance: the event service
// has no token endpoint of its own.
func (a *Authenticator) geoEventLogin(ctx context.Context, req Request) (Entry, error) {
	parsed, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return Entry{}, core.NewInvalidURLError(req.URL, "missing either its scheme or host")
	}

	port := "6443"
	if strings.EqualFold(parsed.Scheme, "http") {
		port = "6080"
	}
	serverURL := fmt.Sprintf("%s://%s:%s/arcgis", parsed.Scheme, parsed.Hostname(), port)

	return a.login(ctx, Request{
		Kind:       endpoint.KindServer,
		URL:        serverURL,
		Credential: req.Credential,
		PublicHost: req.PublicHost,
	}, serverURL)
}

// discoverTokenService fetches the server info document. An unreachable info
// endpoint is tolerated as "assume token auth" at the conventional path; a
// reported non-token scheme is a hard failure.
func (a *Authenticator) discoverTokenService(ctx context.Context, req Request, base string) (serverInfo, string, error) {
	infoURL := endpoint.JoinPath(base, req.Kind.InfoPath())

	headers := map[string]string{}
	if host := strings.TrimSpace(req.PublicHost); host != "" {
		headers["Host"] = host
	}

	res, err := a.adapter.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     infoURL,
		Query:   map[string]string{"f": "json"},
		Headers: headers,
		Timeout: a.timeout,
	})
	if err != nil {
		a.logDebug(ctx, "tokens: server info unreachable, assuming token auth", map[string]any{"url": infoURL})
		return serverInfo{}, endpoint.JoinPath(base, req.Kind.GenerateTokenPath()), nil
	}
	if _, err := transport.ReadEnvelope(res, infoURL, "getting server info"); err != nil {
		if core.IsServiceError(err) {
			return serverInfo{}, "", err
		}
		a.logDebug(ctx, "tokens: server info unreadable, assuming token auth", map[string]any{"url": infoURL})
		return serverInfo{}, endpoint.JoinPath(base, req.Kind.GenerateTokenPath()), nil
	}

	var info serverInfo
	if err := json.Unmarshal(res.Body, &info); err != nil || info.AuthInfo == nil {
		return serverInfo{}, endpoint.JoinPath(base, req.Kind.GenerateTokenPath()), nil
	}
	if !info.AuthInfo.IsTokenBasedSecurity {
		return serverInfo{}, "", core.NewUnsupportedAuthError(req.URL)
	}
	tokenURL := strings.TrimSpace(info.AuthInfo.TokenServicesURL)
	if tokenURL == "" {
		return serverInfo{}, "", core.NewBadInputError(fmt.Sprintf(
			"tokens: the server info for %q does not contain a token service url; try specifying a public host", req.URL,
		))
	}
	return info, tokenURL, nil
}

// generateToken performs the login exchange against the token service.
func (a *Authenticator) generateToken(ctx context.Context, tokenURL string, cred core.Credential, referer string) (Entry, error) {
	if err := a.requireSecure(tokenURL); err != nil {
		return Entry{}, err
	}

	form := url.Values{
		"f":          {"json"},
		"expiration": {strconv.Itoa(a.expirationMinutes())},
		"username":   {cred.Username},
		"password":   {cred.Password},
		"client":     {"referer"},
		"referer":    {referer},
	}
	if referer == "" {
		form.Set("client", "requestip")
	}

	a.logDebug(ctx, "tokens: performing login exchange", map[string]any{
		"url":      tokenURL,
		"username": cred.Username,
	})

	return a.tokenExchange(ctx, tokenURL, form, "getting a token")
}

// swapForServerToken upgrades a portal token into a token for a federated
// server.
func (a *Authenticator) swapForServerToken(ctx context.Context, tokenURL string, serverURL string, token string, username string) (Entry, error) {
	form := url.Values{
		"f":          {"json"},
		"expiration": {strconv.Itoa(a.expirationMinutes())},
		"serverURL":  {serverURL},
		"token":      {token},
	}

	entry, err := a.tokenExchange(ctx, tokenURL, form, "swapping portal token for server token")
	if err != nil {
		return Entry{}, err
	}

	if base, baseErr := endpoint.DeriveBaseURL(serverURL); baseErr == nil {
		a.cache.Store(Key{BaseURL: base, Username: username}, entry)
	}
	return entry, nil
}

func (a *Authenticator) tokenExchange(ctx context.Context, tokenURL string, form url.Values, action string) (Entry, error) {
	res, err := a.adapter.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     tokenURL,
		Form:    form,
		Timeout: a.timeout,
	})
	if err != nil {
		return Entry{}, err
	}
	if _, err := transport.ReadEnvelope(res, tokenURL, action); err != nil {
		return Entry{}, err
	}

	var payload loginPayload
	if err := json.Unmarshal(res.Body, &payload); err != nil || payload.Token == "" {
		return Entry{}, core.NewTransportError(
			fmt.Sprintf("tokens: token service returned no token while %s", action),
			tokenURL,
			res.StatusCode,
			res.Body,
		)
	}

	return Entry{
		Token:       payload.Token,
		ExpiresAt:   time.UnixMilli(int64(payload.Expires)).UTC(),
		SSLRequired: payload.SSL,
	}, nil
}

func (a *Authenticator) requireSecure(tokenURL string) error {
	if a.verifySSL && !strings.HasPrefix(strings.ToLower(tokenURL), "https://") {
		return core.NewInsecureCredentialsError(tokenURL)
	}
	return nil
}

func (a *Authenticator) expirationMinutes() int {
	minutes := int(a.expiration.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func (a *Authenticator) logDebug(ctx context.Context, message string, fields map[string]any) {
	if a.logger == nil {
		return
	}
	logger := a.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Debug(message)
}

var _ core.TokenProvider = (*kindBoundProvider)(nil)

// kindBoundProvider adapts the authenticator to the core.TokenProvider
// contract for a fixed service kind.
type kindBoundProvider struct {
	authenticator *Authenticator
	kind          endpoint.Kind
}

// ProviderFor binds the authenticator to one service kind.
func (a *Authenticator) ProviderFor(kind endpoint.Kind) core.TokenProvider {
	return &kindBoundProvider{authenticator: a, kind: kind}
}

func (p *kindBoundProvider) Token(ctx context.Context, req core.TokenRequest) (core.Token, error) {
	return p.authenticator.Token(ctx, Request{
		Kind:       p.kind,
		URL:        req.URL,
		Credential: req.Credential,
		PublicHost: req.PublicHost,
	})
}
