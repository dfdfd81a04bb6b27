package arcgis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-arcgis/core"
	"github.com/goliatone/go-arcgis/endpoint"
	"github.com/goliatone/go-arcgis/tokens"
	"github.com/goliatone/go-arcgis/transport"
)

// Body carries the payload of a mutating request. Form and JSON are mutually
// exclusive; Files promote a form payload to multipart.
type Body struct {
	Form  url.Values
	JSON  any
	Files []core.FilePart
}

// Response is the outcome of one service call: the raw bytes plus, for JSON
// replies, the decoded document. Headers are flattened to first values, as
// the transport reports them.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Document   map[string]any
}

type requestSettings struct {
	admin   bool
	query   map[string]string
	headers map[string]string
	timeout time.Duration
}

// RequestOption adjusts a single service call.
type RequestOption func(*requestSettings)

// AsAdmin routes the call to the service's admin directory instead of its
// REST directory.
func AsAdmin() RequestOption {
	return func(s *requestSettings) {
		s.admin = true
	}
}

// WithQueryParam adds one query string parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(s *requestSettings) {
		if s.query == nil {
			s.query = map[string]string{}
		}
		s.query[key] = value
	}
}

// WithHeader adds one request header.
func WithHeader(key, value string) RequestOption {
	return func(s *requestSettings) {
		if s.headers == nil {
			s.headers = map[string]string{}
		}
		s.headers[key] = value
	}
}

// WithRequestTimeout overrides the configured deadline for this call only.
// Negative waits forever.
func WithRequestTimeout(timeout time.Duration) RequestOption {
	return func(s *requestSettings) {
		s.timeout = timeout
	}
}

// Connection is the request handler for one service of the deployment. All
// verbs resolve the endpoint, attach authentication, and interpret the
// response envelope.
type Connection struct {
	kind       endpoint.Kind
	resolver   *endpoint.Resolver
	adapter    core.TransportAdapter
	auth       *tokens.Authenticator
	credential core.Credential
	publicHost string
}

func newConnection(resolver *endpoint.Resolver, adapter core.TransportAdapter, auth *tokens.Authenticator, cfg core.Config, kind endpoint.Kind) *Connection {
	return &Connection{
		kind:       kind,
		resolver:   resolver,
		adapter:    adapter,
		auth:       auth,
		credential: cfg.Credential(),
		publicHost: cfg.PublicHost,
	}
}

// Kind identifies which service this connection targets.
func (c *Connection) Kind() endpoint.Kind {
	return c.kind
}

// Descriptor returns the derived endpoint URLs for this service.
func (c *Connection) Descriptor() (endpoint.Descriptor, error) {
	return c.resolver.Resolve(c.kind)
}

// Token returns a valid token for this service, from cache when possible.
func (c *Connection) Token(ctx context.Context) (core.Token, error) {
	desc, err := c.resolver.Resolve(c.kind)
	if err != nil {
		return core.Token{}, err
	}
	return c.auth.Token(ctx, tokens.Request{
		Kind:       c.kind,
		URL:        desc.BaseURL,
		Credential: c.credential,
		PublicHost: c.publicHost,
	})
}

func (c *Connection) Get(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, Body{}, options)
}

func (c *Connection) Post(ctx context.Context, path string, body Body, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodPost, path, body, options)
}

func (c *Connection) Put(ctx context.Context, path string, body Body, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodPut, path, body, options)
}

func (c *Connection) Patch(ctx context.Context, path string, body Body, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodPatch, path, body, options)
}

func (c *Connection) Delete(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodDelete, path, Body{}, options)
}

// Head checks a resource without interpreting a response body.
func (c *Connection) Head(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodHead, path, Body{}, options)
}

// Options probes the verbs a resource supports.
func (c *Connection) Options(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.request(ctx, http.MethodOptions, path, Body{}, options)
}

func (c *Connection) request(ctx context.Context, method string, path string, body Body, options []RequestOption) (*Response, error) {
	if path == "" {
		return nil, core.NewBadInputError("arcgis: request path must not be empty")
	}

	settings := requestSettings{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&settings)
	}

	desc, err := c.resolver.Resolve(c.kind)
	if err != nil {
		return nil, err
	}
	requestURL := desc.URLFor(path, settings.admin)

	token, err := c.auth.Token(ctx, tokens.Request{
		Kind:       c.kind,
		URL:        desc.BaseURL,
		Credential: c.credential,
		PublicHost: c.publicHost,
	})
	if err != nil {
		return nil, err
	}

	query := map[string]string{}
	for key, value := range settings.query {
		query[key] = value
	}
	headers := map[string]string{"Accept": "application/json"}
	for key, value := range settings.headers {
		headers[key] = value
	}

	body, query = c.attachAuth(body, query, headers, token)

	res, err := c.adapter.Do(ctx, core.TransportRequest{
		Method:  method,
		URL:     requestURL,
		Query:   query,
		Headers: headers,
		Form:    body.Form,
		JSON:    body.JSON,
		Files:   body.Files,
		Timeout: settings.timeout,
	})
	if err != nil {
		return nil, err
	}

	// HEAD and OPTIONS replies carry no envelope worth parsing.
	if method == http.MethodHead || method == http.MethodOptions {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, core.NewTransportError(
				fmt.Sprintf("arcgis: %s %s returned status %d", method, path, res.StatusCode),
				requestURL,
				res.StatusCode,
				res.Body,
			)
		}
		return newResponse(res, nil), nil
	}

	doc, err := transport.ReadEnvelope(res, requestURL, fmt.Sprintf("calling %s %s", method, path))
	if err != nil {
		return nil, err
	}
	return newResponse(res, doc), nil
}

// attachAuth mixes the JSON format selector and the token into the request.
// The pair rides in the first payload the caller supplied: form, then JSON
// document, then query string. Caller payloads are copied before the merge.
// GeoEvent is the exception, its token travels as an admin cookie and never
// in the payload.
func (c *Connection) attachAuth(body Body, query map[string]string, headers map[string]string, token core.Token) (Body, map[string]string) {
	if c.kind == endpoint.KindGeoEvent {
		if !token.IsZero() {
			headers["Cookie"] = "adminToken=" + token.Value
		}
		query["f"] = "json"
		return body, query
	}

	extras := map[string]string{"f": "json"}
	if !token.IsZero() {
		extras["token"] = token.Value
	}

	// File uploads ride in multipart form fields alongside the files.
	if len(body.Files) > 0 && body.Form == nil {
		body.Form = url.Values{}
	}

	switch {
	case body.Form != nil:
		form := make(url.Values, len(body.Form)+len(extras))
		for key, values := range body.Form {
			form[key] = append([]string(nil), values...)
		}
		for key, value := range extras {
			form.Set(key, value)
		}
		body.Form = form
	case body.JSON != nil:
		if doc, ok := body.JSON.(map[string]any); ok {
			merged := make(map[string]any, len(doc)+len(extras))
			for key, value := range doc {
				merged[key] = value
			}
			for key, value := range extras {
				merged[key] = value
			}
			body.JSON = merged
		} else {
			for key, value := range extras {
				query[key] = value
			}
		}
	default:
		for key, value := range extras {
			query[key] = value
		}
	}
	return body, query
}

func newResponse(res core.TransportResponse, doc map[string]any) *Response {
	return &Response{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
		Document:   doc,
	}
}
