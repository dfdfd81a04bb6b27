package core

import (
	"context"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Credential is the username/password pair used for token authentication.
// Absence means anonymous access. Never logged.
type Credential struct {
	Username string
	Password string
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.Username) == "" || c.Password == ""
}

// Token is the result of a token lookup. A zero token means anonymous access.
type Token struct {
	Value       string
	ExpiresAt   time.Time
	SSLRequired bool
}

func (t Token) IsZero() bool {
	return t.Value == ""
}

// FilePart is a single file attachment for a multipart request body.
type FilePart struct {
	Field    string
	Name     string
	MIMEType string
	Content  []byte
}

// TransportRequest describes one outgoing HTTP exchange. Form and JSON bodies
// are mutually exclusive; Files forces a multipart body and may be combined
// with Form fields.
type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Query    map[string]string
	Form     url.Values
	JSON     any
	Files    []FilePart
	Metadata map[string]any
	// Timeout bounds the whole exchange. Zero applies the adapter default,
	// a negative value waits forever.
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// TokenProvider resolves a bearer token for an endpoint, reusing cached
// entries when they retain sufficient lifetime.
type TokenProvider interface {
	Token(ctx context.Context, req TokenRequest) (Token, error)
}

// TokenRequest identifies the endpoint and credentials for a token lookup.
type TokenRequest struct {
	URL        string
	Credential Credential
	PublicHost string
}
