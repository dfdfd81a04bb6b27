package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-arcgis/core"
)

const KindREST = "rest"

const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter dispatches requests through an injected HTTP client. It encodes
// the request body (form, JSON, or multipart), applies the per-request
// timeout, and bounds the response body size. TLS policy lives on the client
// built by NewHTTPClient.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	DefaultTimeout       time.Duration
	// Logger enables verbose per-exchange logging. Nil keeps the adapter
	// silent, which is the default.
	Logger core.Logger
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = NewHTTPClient(core.TimeoutConfig{}, false)
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
		DefaultTimeout:       core.DefaultRequestTimeout,
	}
}

// NewHTTPClient builds the underlying client with the connect timeout on the
// dialer and certificate verification per the skipVerify flag. The read bound
// is applied per request, not here.
func NewHTTPClient(timeout core.TimeoutConfig, skipVerify bool) *http.Client {
	connect := timeout.Connect
	if connect == 0 {
		connect = core.DefaultConnectTimeout
	}
	dialer := &net.Dialer{}
	if connect > 0 {
		dialer.Timeout = connect
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, goerrors.New(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
		).WithCode(http.StatusInternalServerError).WithTextCode(core.ArcgisErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		reason := "missing either its scheme or host"
		if err != nil {
			reason = err.Error()
		}
		return core.TransportResponse{}, core.NewInvalidURLError(req.URL, reason)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(key, value)
	}
	parsedURL.RawQuery = query.Encode()

	body, contentType, err := encodeBody(req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	requestCtx, cancel := a.requestContext(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(body))
	if err != nil {
		return core.TransportResponse{}, core.WrapTransportError(err, "transport: create http request", parsedURL.String())
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		// Host is a request property, not a plain header.
		if strings.EqualFold(key, "Host") {
			httpReq.Host = value
			continue
		}
		httpReq.Header.Set(key, value)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	requestID := uuid.NewString()
	startedAt := time.Now().UTC()
	a.logExchange(ctx, "transport: dispatching request", map[string]any{
		"request_id": requestID,
		"method":     method,
		"url":        parsedURL.String(),
	})

	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, core.WrapTransportError(err, "transport: execute http request", parsedURL.String())
	}
	defer httpRes.Body.Close()

	maxBodyBytes := a.responseBodyLimit()
	resBody, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, core.WrapTransportError(err, "transport: read response body", parsedURL.String())
	}
	if int64(len(resBody)) > maxBodyBytes {
		return core.TransportResponse{}, core.NewTransportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			parsedURL.String(),
			httpRes.StatusCode,
			nil,
		)
	}

	a.logExchange(ctx, "transport: received response", map[string]any{
		"request_id":  requestID,
		"status_code": httpRes.StatusCode,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	})

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       resBody,
		Metadata: map[string]any{
			"request_id":  requestID,
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// requestContext applies the per-request deadline: positive bounds the
// exchange, negative waits forever, zero falls back to the adapter default.
func (a *RESTAdapter) requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout < 0 {
		return ctx, func() {}
	}
	if timeout == 0 {
		timeout = a.DefaultTimeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (a *RESTAdapter) responseBodyLimit() int64 {
	if a.MaxResponseBodyBytes > 0 {
		return a.MaxResponseBodyBytes
	}
	return defaultRESTResponseBodyLimit
}

func (a *RESTAdapter) logExchange(ctx context.Context, message string, fields map[string]any) {
	if a.Logger == nil {
		return
	}
	logger := a.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Debug(message)
}

// encodeBody renders at most one body kind. Form and JSON are mutually
// exclusive; files force a multipart body that may carry the form fields.
func encodeBody(req core.TransportRequest) ([]byte, string, error) {
	if len(req.Form) > 0 && req.JSON != nil {
		return nil, "", core.NewBadInputError("transport: form and json bodies are mutually exclusive")
	}

	if len(req.Files) > 0 {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for key, values := range req.Form {
			for _, value := range values {
				if err := writer.WriteField(key, value); err != nil {
					return nil, "", core.MapError(err)
				}
			}
		}
		for _, file := range req.Files {
			part, err := writer.CreateFormFile(file.Field, file.Name)
			if err != nil {
				return nil, "", core.MapError(err)
			}
			if _, err := part.Write(file.Content); err != nil {
				return nil, "", core.MapError(err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", core.MapError(err)
		}
		return buf.Bytes(), writer.FormDataContentType(), nil
	}

	if len(req.Form) > 0 {
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	}

	if req.JSON != nil {
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", core.MapError(err)
		}
		return encoded, "application/json", nil
	}

	return nil, "", nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
