package arcgis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-arcgis/core"
)

// recordedCall captures what one data request looked like on the wire.
type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// deployment is an in-process portal/server fixture serving the token flow
// plus a recording catch-all for data requests.
type deployment struct {
	*httptest.Server

	loginHits atomic.Int32

	mu    sync.Mutex
	calls []recordedCall
}

func newDeployment(t *testing.T) *deployment {
	t.Helper()
	d := &deployment{}

	mux := http.NewServeMux()
	info := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"authInfo": map[string]any{
				"isTokenBasedSecurity": true,
				"tokenServicesUrl":     d.URL + "/arcgis/sharing/rest/generateToken",
			},
		})
	}
	login := func(w http.ResponseWriter, r *http.Request) {
		d.loginHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "deployment-token",
			"expires": time.Now().Add(time.Hour).UnixMilli(),
		})
	}
	mux.HandleFunc("/arcgis/sharing/rest/info", info)
	mux.HandleFunc("/arcgis/rest/info", info)
	mux.HandleFunc("/arcgis/sharing/rest/generateToken", login)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		d.mu.Lock()
		d.calls = append(d.calls, recordedCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Form:   r.PostForm,
			Header: r.Header.Clone(),
		})
		d.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"folders": []string{"Hosted"}})
	})

	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

func (d *deployment) lastCall(t *testing.T) recordedCall {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		t.Fatalf("no data calls recorded")
	}
	return d.calls[len(d.calls)-1]
}

func (d *deployment) anonymousClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Config{Server: d.URL, SkipSSLVerify: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return client
}

func (d *deployment) authenticatedClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Config{
		Server:        d.URL,
		Username:      "bob",
		Password:      "hunter2",
		SkipSSLVerify: true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return client
}

func TestConnection_AnonymousGetCarriesNoToken(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	res, err := client.Portal().Get(context.Background(), "portals/self")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", res.StatusCode)
	}
	if res.Document == nil {
		t.Fatalf("expected decoded document")
	}

	call := d.lastCall(t)
	if call.Path != "/arcgis/sharing/rest/portals/self" {
		t.Fatalf("unexpected path %q", call.Path)
	}
	if call.Query.Get("f") != "json" {
		t.Fatalf("expected f=json in query, got %v", call.Query)
	}
	if call.Query.Get("token") != "" {
		t.Fatalf("anonymous request must not carry a token: %v", call.Query)
	}
	if got := d.loginHits.Load(); got != 0 {
		t.Fatalf("expected no login exchange, got %d", got)
	}
}

func TestConnection_AuthenticatedPostLogsInOnce(t *testing.T) {
	d := newDeployment(t)
	client := d.authenticatedClient(t)

	form := url.Values{"title": {"Parcels"}}
	if _, err := client.Portal().Post(context.Background(), "content/users/bob/addItem", Body{Form: form}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if got := d.loginHits.Load(); got != 1 {
		t.Fatalf("expected exactly one login exchange, got %d", got)
	}
	call := d.lastCall(t)
	if call.Form.Get("token") != "deployment-token" {
		t.Fatalf("expected token in the form payload, got %v", call.Form)
	}
	if call.Form.Get("f") != "json" || call.Form.Get("title") != "Parcels" {
		t.Fatalf("form payload lost fields: %v", call.Form)
	}
	if form.Get("token") != "" || form.Get("f") != "" {
		t.Fatalf("caller form must not be mutated: %v", form)
	}

	// A second call reuses the cached token without another exchange.
	if _, err := client.Portal().Get(context.Background(), "portals/self"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := d.loginHits.Load(); got != 1 {
		t.Fatalf("expected token reuse, got %d login exchanges", got)
	}
	if got := d.lastCall(t).Query.Get("token"); got != "deployment-token" {
		t.Fatalf("expected cached token on the query string, got %q", got)
	}
}

func TestConnection_JSONDocumentGetsAuthMixedIn(t *testing.T) {
	d := newDeployment(t)
	client := d.authenticatedClient(t)

	original := map[string]any{"title": "Parcels"}
	if _, err := client.Server().Post(context.Background(), "services/create", Body{JSON: original}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if _, mutated := original["token"]; mutated {
		t.Fatalf("caller document must not be mutated")
	}
	call := d.lastCall(t)
	if !strings.Contains(call.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("expected json content type, got %q", call.Header.Get("Content-Type"))
	}
}

func TestConnection_AdminRouting(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	if _, err := client.Server().Get(context.Background(), "system/licenses", AsAdmin()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := d.lastCall(t).Path; got != "/arcgis/admin/system/licenses" {
		t.Fatalf("expected admin directory routing, got %q", got)
	}
}

func TestConnection_ServiceErrorIsNotTransportError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "Item does not exist"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := New(Config{Server: srv.URL, SkipSSLVerify: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = client.Portal().Get(context.Background(), "content/items/missing")
	if !core.IsServiceError(err) {
		t.Fatalf("expected application error, got %v", err)
	}
	if core.IsTransportError(err) {
		t.Fatalf("a 2xx error document must not map to a transport failure")
	}
}

func TestConnection_GeoEventAdaptorTopologyRefusedOffline(t *testing.T) {
	client, err := New(Config{
		Server:      "https://gis.example.com",
		WebAdaptors: core.WebAdaptorConfig{Portal: "portal", Server: "hosted"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = client.GeoEvent().Get(context.Background(), "admin/status")
	if !core.IsUnsupportedTopology(err) {
		t.Fatalf("expected unsupported topology, got %v", err)
	}
}

func TestConnection_GeoEventRoutesThroughEventDirectory(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	if _, err := client.GeoEvent().Get(context.Background(), "status"); err != nil {
		t.Fatalf("get: %v", err)
	}
	call := d.lastCall(t)
	if call.Path != "/geoevent/rest/status" {
		t.Fatalf("unexpected geoevent path %q", call.Path)
	}
	if call.Header.Get("Cookie") != "" {
		t.Fatalf("anonymous geoevent request must carry no cookie")
	}
}

func TestConnection_EmptyPathRejected(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	if _, err := client.Portal().Get(context.Background(), ""); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestConnection_HeadSkipsEnvelope(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	res, err := client.Portal().Head(context.Background(), "portals/self")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if res.Document != nil {
		t.Fatalf("head responses carry no document")
	}
}

func TestConnection_AcceptHeaderAndQueryOptions(t *testing.T) {
	d := newDeployment(t)
	client := d.anonymousClient(t)

	if _, err := client.Portal().Get(context.Background(), "search", WithQueryParam("q", "owner:bob")); err != nil {
		t.Fatalf("get: %v", err)
	}
	call := d.lastCall(t)
	if call.Header.Get("Accept") != "application/json" {
		t.Fatalf("expected json accept header, got %q", call.Header.Get("Accept"))
	}
	if call.Query.Get("q") != "owner:bob" {
		t.Fatalf("expected caller query to survive, got %v", call.Query)
	}
}

func TestSession_SharesTokenCacheAndCloses(t *testing.T) {
	d := newDeployment(t)
	client := d.authenticatedClient(t)

	// Warm the cache through the client.
	if _, err := client.Portal().Get(context.Background(), "portals/self"); err != nil {
		t.Fatalf("get: %v", err)
	}

	session := client.NewSession()
	if _, err := session.Portal().Get(context.Background(), "portals/self"); err != nil {
		t.Fatalf("session get: %v", err)
	}
	if got := d.loginHits.Load(); got != 1 {
		t.Fatalf("expected the session to reuse the client's token, got %d exchanges", got)
	}

	session.Close()
	if _, err := session.Server().Get(context.Background(), "services"); err != nil {
		t.Fatalf("session must stay usable after close: %v", err)
	}
}
