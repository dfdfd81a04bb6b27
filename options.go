package arcgis

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-arcgis/core"
	"github.com/goliatone/go-arcgis/tokens"
	"github.com/goliatone/go-arcgis/transport"
)

type clientBuilder struct {
	runtimeConfig   core.Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	adapter         core.TransportAdapter
	httpClient      transport.HTTPDoer
	cache           *tokens.Cache
	clock           func() time.Time
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
}

// Option customizes client construction.
type Option func(*clientBuilder)

func defaultClientBuilder(runtime core.Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("arcgis", nil, nil)
	return clientBuilder{
		runtimeConfig:  runtime,
		logger:         logger,
		loggerProvider: loggerProvider,
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

// WithTransport replaces the REST adapter wholesale. The same adapter serves
// both data requests and the token acquisition flow.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(b *clientBuilder) {
		b.adapter = adapter
	}
}

// WithHTTPClient swaps the underlying HTTP client while keeping the default
// REST adapter behavior.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *clientBuilder) {
		b.httpClient = client
	}
}

// WithTokenCache injects a shared token cache, letting several clients reuse
// tokens for the same endpoints and users.
func WithTokenCache(cache *tokens.Cache) Option {
	return func(b *clientBuilder) {
		b.cache = cache
	}
}

// WithClock overrides the time source used for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(b *clientBuilder) {
		b.clock = now
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}
