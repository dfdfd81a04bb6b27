// Package arcgis is a client helper for the authenticated REST surfaces of
// an ArcGIS Enterprise deployment: the portal, the map/feature server, and
// the GeoEvent processor. It derives the per-service endpoint URLs from a
// single deployment URL and transparently acquires, caches, and attaches the
// short-lived tokens the services require.
package arcgis

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-arcgis/core"
	"github.com/goliatone/go-arcgis/endpoint"
	"github.com/goliatone/go-arcgis/tokens"
	"github.com/goliatone/go-arcgis/transport"
)

type Config = core.Config

type Credential = core.Credential

type Token = core.Token

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Client holds the deployment identity and the shared transport, token
// cache, and authenticator behind the per-service connection handlers.
// It is immutable after construction and safe for concurrent use.
type Client struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	resolver       *endpoint.Resolver
	adapter        core.TransportAdapter
	authenticator  *tokens.Authenticator

	portal   *Connection
	server   *Connection
	geoEvent *Connection
}

// New builds a client from the merged configuration layers: package defaults,
// values from the config provider, and the runtime config passed here, in
// ascending priority.
func New(cfg Config, options ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("arcgis", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("arcgis"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, core.MapError(err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, core.MapError(err)
	}

	identity, err := endpoint.NewIdentity(finalConfig.Server, finalConfig.WebAdaptors, finalConfig.PublicHost)
	if err != nil {
		return nil, err
	}

	adapter := builder.adapter
	if adapter == nil {
		httpClient := builder.httpClient
		if httpClient == nil {
			httpClient = transport.NewHTTPClient(finalConfig.Timeout, finalConfig.SkipSSLVerify)
		}
		rest := transport.NewRESTAdapter(httpClient)
		if finalConfig.Timeout.Request != 0 {
			rest.DefaultTimeout = finalConfig.Timeout.Request
		}
		adapter = rest
	}

	cache := builder.cache
	if cache == nil {
		cache = tokens.NewCache(tokens.CacheConfig{Now: builder.clock})
	}

	authenticator := tokens.NewAuthenticator(tokens.AuthenticatorConfig{
		Adapter:    adapter,
		Cache:      cache,
		Logger:     logger,
		Expiration: finalConfig.TokenExpiration,
		Timeout:    finalConfig.Timeout.Request,
		VerifySSL:  finalConfig.VerifySSL(),
	})

	client := &Client{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		resolver:       endpoint.NewResolver(identity),
		adapter:        adapter,
		authenticator:  authenticator,
	}
	client.portal = newConnection(client.resolver, adapter, authenticator, finalConfig, endpoint.KindPortal)
	client.server = newConnection(client.resolver, adapter, authenticator, finalConfig, endpoint.KindServer)
	client.geoEvent = newConnection(client.resolver, adapter, authenticator, finalConfig, endpoint.KindGeoEvent)
	return client, nil
}

// Config returns the fully merged configuration the client runs with.
func (c *Client) Config() core.Config {
	return c.config
}

// Portal returns the connection handler for the portal service.
func (c *Client) Portal() *Connection {
	return c.portal
}

// Server returns the connection handler for the map/feature server.
func (c *Client) Server() *Connection {
	return c.server
}

// GeoEvent returns the connection handler for the GeoEvent processor.
func (c *Client) GeoEvent() *Connection {
	return c.geoEvent
}

// TokenCache exposes the token store so callers can invalidate entries, for
// example after a credential rotation.
func (c *Client) TokenCache() *tokens.Cache {
	return c.authenticator.Cache()
}
