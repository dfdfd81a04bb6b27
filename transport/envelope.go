package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-arcgis/core"
)

// ServiceFault is the conventional error object the services embed inside an
// otherwise successful response body.
type ServiceFault struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// ReadEnvelope inspects a response for both failure channels: a non-2xx
// status becomes a transport error, and a 2xx JSON body carrying an embedded
// {error: {...}} or {"success": false} becomes a service error. The two are
// never merged; both preserve the raw body. A 2xx body that is not JSON is
// tolerated and yields a nil document.
func ReadEnvelope(res core.TransportResponse, url string, action string) (map[string]any, error) {
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, core.NewTransportError(
			fmt.Sprintf("transport: http %d while %s", res.StatusCode, action),
			url,
			res.StatusCode,
			res.Body,
		)
	}

	if !looksLikeJSON(res) {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, core.NewTransportError(
			fmt.Sprintf("transport: unreadable json while %s", action),
			url,
			res.StatusCode,
			res.Body,
		)
	}
	document, ok := payload.(map[string]any)
	if !ok {
		// JSON arrays and scalars carry no error envelope; the raw body
		// stays available on the response.
		return nil, nil
	}

	if rawFault, ok := document["error"]; ok {
		fault := parseFault(rawFault)
		return nil, core.NewServiceError(
			fmt.Sprintf("transport: arcgis error while %s: %d - %s", action, fault.Code, fault.Message),
			url,
			fault.Code,
			fault.Details,
			res.Body,
		)
	}

	if success, ok := document["success"].(bool); ok && !success {
		return nil, core.NewServiceError(
			fmt.Sprintf("transport: unsuccessful arcgis response while %s", action),
			url,
			res.StatusCode,
			nil,
			res.Body,
		)
	}

	return document, nil
}

func parseFault(raw any) ServiceFault {
	fault := ServiceFault{Message: "No Message"}
	object, ok := raw.(map[string]any)
	if !ok {
		return fault
	}
	if code, ok := object["code"].(float64); ok {
		fault.Code = int(code)
	}
	if message, ok := object["message"].(string); ok && message != "" {
		fault.Message = message
	}
	if details, ok := object["details"].([]any); ok {
		for _, item := range details {
			if text, ok := item.(string); ok {
				fault.Details = append(fault.Details, text)
			}
		}
	}
	return fault
}

func looksLikeJSON(res core.TransportResponse) bool {
	for key, value := range res.Headers {
		if strings.EqualFold(key, "Content-Type") {
			if strings.Contains(strings.ToLower(value), "json") {
				return true
			}
			break
		}
	}
	trimmed := strings.TrimSpace(string(res.Body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
