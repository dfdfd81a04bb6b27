package endpoint

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-arcgis/core"
)

// DeriveBaseURL truncates a URL to the scheme, host, and endpoint root
// directory, e.g. https://example.com/arcgis. All later path composition is
// plain concatenation onto this prefix. Idempotent for any URL it accepts.
func DeriveBaseURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", core.NewInvalidURLError(raw, err.Error())
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", core.NewInvalidURLError(raw, "missing either its scheme or host")
	}

	root := firstPathSegment(parsed.Path)
	if root == "" {
		return "", core.NewInvalidURLError(raw, "missing the endpoint root directory")
	}

	base := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/" + root}
	return base.String(), nil
}

// DeriveRefererURL truncates a URL to its origin, e.g. https://example.com.
// The token endpoint validates only the origin of the referer.
func DeriveRefererURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", core.NewInvalidURLError(raw, err.Error())
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", core.NewInvalidURLError(raw, "missing either its scheme or host")
	}

	referer := url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return referer.String(), nil
}

// JoinPath concatenates a relative path onto an already-derived base URL,
// normalizing the leading slash.
func JoinPath(base string, path string) string {
	trimmed := strings.TrimRight(base, "/")
	if path == "" {
		return trimmed
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return trimmed + path
}

func firstPathSegment(path string) string {
	for _, segment := range strings.Split(path, "/") {
		if strings.TrimSpace(segment) != "" {
			return segment
		}
	}
	return ""
}
