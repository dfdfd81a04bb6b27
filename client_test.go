package arcgis

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-arcgis/core"
	"github.com/goliatone/go-arcgis/endpoint"
	"github.com/goliatone/go-arcgis/tokens"
)

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected construction without a server url to fail")
	}
	if _, err := New(Config{Server: "example.com"}); err == nil {
		t.Fatalf("expected a schemeless server url to fail")
	}
}

func TestNew_RejectsHalfCredentials(t *testing.T) {
	_, err := New(Config{Server: "https://gis.example.com", Username: "bob"})
	if err == nil {
		t.Fatalf("expected a username without a password to fail")
	}
}

func TestNew_BuildsPerServiceConnections(t *testing.T) {
	client, err := New(Config{Server: "https://gis.example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if got := client.Portal().Kind(); got != endpoint.KindPortal {
		t.Fatalf("portal connection has kind %v", got)
	}
	if got := client.Server().Kind(); got != endpoint.KindServer {
		t.Fatalf("server connection has kind %v", got)
	}
	if got := client.GeoEvent().Kind(); got != endpoint.KindGeoEvent {
		t.Fatalf("geoevent connection has kind %v", got)
	}

	desc, err := client.Portal().Descriptor()
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.RestURL != "https://gis.example.com:7443/arcgis/sharing/rest" {
		t.Fatalf("unexpected portal rest url %q", desc.RestURL)
	}
}

func TestNew_RuntimeConfigWinsOverLoaded(t *testing.T) {
	loader := core.NewStaticRawConfigLoader(map[string]any{
		"server":   "https://loaded.example.com",
		"username": "loaded-user",
		"password": "loaded-pass",
	})

	client, err := New(
		Config{Server: "https://runtime.example.com"},
		WithConfigProvider(core.NewCfgxConfigProvider(loader)),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	cfg := client.Config()
	if cfg.Server != "https://runtime.example.com" {
		t.Fatalf("expected runtime server to win, got %q", cfg.Server)
	}
	if cfg.Username != "loaded-user" {
		t.Fatalf("expected loaded username to survive, got %q", cfg.Username)
	}
}

func TestNew_SharedTokenCache(t *testing.T) {
	cache := tokens.NewCache(tokens.CacheConfig{})
	key := tokens.Key{BaseURL: "https://gis.example.com:7443/arcgis", Username: "bob"}
	cache.Store(key, tokens.Entry{Token: "warm", ExpiresAt: time.Now().Add(time.Hour)})

	client, err := New(
		Config{Server: "https://gis.example.com", Username: "bob", Password: "hunter2"},
		WithTokenCache(cache),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	token, err := client.Portal().Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.Value != "warm" {
		t.Fatalf("expected injected cache to serve the token, got %q", token.Value)
	}
	if client.TokenCache() != cache {
		t.Fatalf("expected TokenCache to return the injected cache")
	}
}

func TestNew_NilOptionsAreIgnored(t *testing.T) {
	if _, err := New(Config{Server: "https://gis.example.com"}, nil, WithLogger(nil)); err != nil {
		t.Fatalf("new: %v", err)
	}
}
