package transport

import (
	"net/http"
	"testing"

	"github.com/goliatone/go-arcgis/core"
)

func TestReadEnvelope_TransportErrorOnNon2xx(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusServiceUnavailable,
		Headers:    map[string]string{"Content-Type": "text/html"},
		Body:       []byte("<html>down</html>"),
	}

	_, err := ReadEnvelope(res, "https://example.com/arcgis/rest/info", "getting server info")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if !core.IsTransportError(err) {
		t.Fatalf("expected transport text code, got %v", err)
	}
	meta := core.ErrorMetadata(err)
	if meta[core.ErrMetaStatusCode] != http.StatusServiceUnavailable {
		t.Fatalf("expected status in metadata, got %v", meta[core.ErrMetaStatusCode])
	}
	if meta[core.ErrMetaRawBody] != "<html>down</html>" {
		t.Fatalf("expected raw body in metadata, got %v", meta[core.ErrMetaRawBody])
	}
}

func TestReadEnvelope_ServiceErrorInside2xxBody(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"error":{"code":400,"message":"Invalid token","details":["token expired"]}}`),
	}

	_, err := ReadEnvelope(res, "https://example.com/arcgis/rest/x", "executing a get request")
	if err == nil {
		t.Fatalf("expected service error")
	}
	if !core.IsServiceError(err) {
		t.Fatalf("expected service text code, got %v", err)
	}
	if core.IsTransportError(err) {
		t.Fatalf("embedded error must not surface as a transport failure")
	}
	meta := core.ErrorMetadata(err)
	if meta[core.ErrMetaServiceCode] != 400 {
		t.Fatalf("expected service code 400, got %v", meta[core.ErrMetaServiceCode])
	}
	if meta[core.ErrMetaDetails] != "token expired" {
		t.Fatalf("expected details in metadata, got %v", meta[core.ErrMetaDetails])
	}
}

func TestReadEnvelope_UnsuccessfulFlagIsServiceError(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"success":false,"status":"error"}`),
	}

	_, err := ReadEnvelope(res, "https://example.com/arcgis/admin/x", "executing a post request")
	if err == nil || !core.IsServiceError(err) {
		t.Fatalf("expected service error for success=false, got %v", err)
	}
}

func TestReadEnvelope_ParsesHealthyDocument(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"currentVersion":11.2,"success":true}`),
	}

	document, err := ReadEnvelope(res, "https://example.com/arcgis/rest/info", "getting server info")
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if document["currentVersion"] != 11.2 {
		t.Fatalf("expected parsed document, got %v", document)
	}
}

func TestReadEnvelope_ToleratesNonJSONBodies(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       []byte("pong"),
	}

	document, err := ReadEnvelope(res, "https://example.com/arcgis/rest/info", "pinging")
	if err != nil {
		t.Fatalf("expected non-json body to be tolerated, got %v", err)
	}
	if document != nil {
		t.Fatalf("expected nil document for non-json body")
	}
}

func TestReadEnvelope_MalformedJSONWithJSONContentType(t *testing.T) {
	res := core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"truncated":`),
	}

	_, err := ReadEnvelope(res, "https://example.com/arcgis/rest/info", "getting server info")
	if err == nil || !core.IsTransportError(err) {
		t.Fatalf("expected transport error for unreadable json, got %v", err)
	}
}
