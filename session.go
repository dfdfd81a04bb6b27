package arcgis

import (
	"github.com/goliatone/go-arcgis/endpoint"
	"github.com/goliatone/go-arcgis/tokens"
	"github.com/goliatone/go-arcgis/transport"
)

// Session is a scoped handle over a dedicated connection pool. Its verbs
// behave exactly like the client's, but all requests reuse one transport
// whose idle connections can be released deterministically with Close.
// Tokens keep flowing through the owning client's cache.
type Session struct {
	client     *Client
	httpClient interface{ CloseIdleConnections() }

	portal   *Connection
	server   *Connection
	geoEvent *Connection
}

// NewSession builds a session with its own pooled transport. Callers that
// issue bursts of requests get connection reuse without holding sockets open
// for the client's whole lifetime.
func (c *Client) NewSession() *Session {
	httpClient := transport.NewHTTPClient(c.config.Timeout, c.config.SkipSSLVerify)
	rest := transport.NewRESTAdapter(httpClient)
	if c.config.Timeout.Request != 0 {
		rest.DefaultTimeout = c.config.Timeout.Request
	}

	authenticator := tokens.NewAuthenticator(tokens.AuthenticatorConfig{
		Adapter:    rest,
		Cache:      c.authenticator.Cache(),
		Logger:     c.logger,
		Expiration: c.config.TokenExpiration,
		Timeout:    c.config.Timeout.Request,
		VerifySSL:  c.config.VerifySSL(),
	})

	return &Session{
		client:     c,
		httpClient: httpClient,
		portal:     newConnection(c.resolver, rest, authenticator, c.config, endpoint.KindPortal),
		server:     newConnection(c.resolver, rest, authenticator, c.config, endpoint.KindServer),
		geoEvent:   newConnection(c.resolver, rest, authenticator, c.config, endpoint.KindGeoEvent),
	}
}

// Portal returns the session-scoped portal handler.
func (s *Session) Portal() *Connection {
	return s.portal
}

// Server returns the session-scoped server handler.
func (s *Session) Server() *Connection {
	return s.server
}

// GeoEvent returns the session-scoped GeoEvent handler.
func (s *Session) GeoEvent() *Connection {
	return s.geoEvent
}

// Close releases the session's idle connections. The session stays usable;
// subsequent requests simply dial fresh connections.
func (s *Session) Close() {
	s.httpClient.CloseIdleConnections()
}
