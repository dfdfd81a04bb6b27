package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes surfaced on every error the module returns.
const (
	ArcgisErrorInvalidURL          = "ARCGIS_INVALID_URL"
	ArcgisErrorTransportFailure    = "ARCGIS_TRANSPORT_FAILURE"
	ArcgisErrorServiceFailure      = "ARCGIS_SERVICE_ERROR"
	ArcgisErrorUnsupportedAuth     = "ARCGIS_UNSUPPORTED_AUTH"
	ArcgisErrorUnsupportedTopology = "ARCGIS_UNSUPPORTED_TOPOLOGY"
	ArcgisErrorInsecureCredentials = "ARCGIS_INSECURE_CREDENTIALS"
	ArcgisErrorBadInput            = "ARCGIS_BAD_INPUT"
	ArcgisErrorInternal            = "ARCGIS_INTERNAL_ERROR"
)

// Metadata keys preserved on errors so callers can inspect the raw exchange.
const (
	ErrMetaURL         = "url"
	ErrMetaStatusCode  = "status_code"
	ErrMetaRawBody     = "raw_body"
	ErrMetaServiceCode = "service_code"
	ErrMetaDetails     = "details"
)

// NewInvalidURLError reports a URL missing its scheme, host, or root segment.
// Raised synchronously by the URL deriver, never retried.
func NewInvalidURLError(rawURL string, reason string) *goerrors.Error {
	return goerrors.New("core: invalid url: "+reason, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ArcgisErrorInvalidURL).
		WithMetadata(map[string]any{ErrMetaURL: rawURL})
}

// NewTransportError wraps a non-2xx HTTP status or a failed exchange. The
// status code and raw body ride along in the error metadata.
func NewTransportError(message string, url string, statusCode int, rawBody []byte) *goerrors.Error {
	code := statusCode
	if code == 0 {
		code = http.StatusBadGateway
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(code).
		WithTextCode(ArcgisErrorTransportFailure).
		WithMetadata(map[string]any{
			ErrMetaURL:        url,
			ErrMetaStatusCode: statusCode,
			ErrMetaRawBody:    string(rawBody),
		})
}

// WrapTransportError attaches the transport envelope to a lower-level failure
// such as a dial or TLS error.
func WrapTransportError(source error, message string, url string) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ArcgisErrorTransportFailure).
		WithMetadata(map[string]any{ErrMetaURL: url})
}

// NewServiceError reports a failure the service embedded inside a 2xx body,
// the conventional {error: {code, message, details}} shape. Distinct from a
// transport failure and never merged with one.
func NewServiceError(message string, url string, serviceCode int, details []string, rawBody []byte) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadRequest).
		WithTextCode(ArcgisErrorServiceFailure).
		WithMetadata(map[string]any{
			ErrMetaURL:         url,
			ErrMetaServiceCode: serviceCode,
			ErrMetaDetails:     strings.Join(details, "; "),
			ErrMetaRawBody:     string(rawBody),
		})
}

// NewUnsupportedAuthError reports a service that advertises a non token based
// security scheme. Detected before any login exchange.
func NewUnsupportedAuthError(url string) *goerrors.Error {
	return goerrors.New("core: server does not use token based security", goerrors.CategoryOperation).
		WithCode(http.StatusNotImplemented).
		WithTextCode(ArcgisErrorUnsupportedAuth).
		WithMetadata(map[string]any{ErrMetaURL: url})
}

// NewUnsupportedTopologyError reports a configuration contradiction, such as
// reaching the event service through a web adaptor. Detected before any
// network call.
func NewUnsupportedTopologyError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusNotImplemented).
		WithTextCode(ArcgisErrorUnsupportedTopology)
}

// NewInsecureCredentialsError refuses to send credentials over an unencrypted
// connection while SSL verification is enabled.
func NewInsecureCredentialsError(url string) *goerrors.Error {
	return goerrors.New(
		"core: not authorized to send credentials over an unencrypted connection; use https or disable ssl verification",
		goerrors.CategoryAuth,
	).
		WithCode(http.StatusForbidden).
		WithTextCode(ArcgisErrorInsecureCredentials).
		WithMetadata(map[string]any{ErrMetaURL: url})
}

// NewBadInputError reports invalid caller input, such as an empty request path.
func NewBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ArcgisErrorBadInput)
}

// IsInvalidURL reports whether err carries the invalid URL text code.
func IsInvalidURL(err error) bool { return hasTextCode(err, ArcgisErrorInvalidURL) }

// IsTransportError reports whether err is a transport-level HTTP failure.
func IsTransportError(err error) bool { return hasTextCode(err, ArcgisErrorTransportFailure) }

// IsServiceError reports whether err is an application-level failure embedded
// in a 2xx body.
func IsServiceError(err error) bool { return hasTextCode(err, ArcgisErrorServiceFailure) }

// IsUnsupportedAuth reports whether err carries the unsupported auth text code.
func IsUnsupportedAuth(err error) bool { return hasTextCode(err, ArcgisErrorUnsupportedAuth) }

// IsUnsupportedTopology reports whether err carries the unsupported topology
// text code.
func IsUnsupportedTopology(err error) bool { return hasTextCode(err, ArcgisErrorUnsupportedTopology) }

// IsInsecureCredentials reports whether err refused to send credentials over
// an unencrypted channel.
func IsInsecureCredentials(err error) bool { return hasTextCode(err, ArcgisErrorInsecureCredentials) }

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// ErrorMetadata returns the metadata map from a rich error, or nil for
// foreign errors.
func ErrorMetadata(err error) map[string]any {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return nil
	}
	return rich.Metadata
}

func clientErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "invalid url"), strings.Contains(msg, "missing either its scheme"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ArcgisErrorInvalidURL))
	case strings.Contains(msg, "token based"), strings.Contains(msg, "unsupported auth"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryOperation).WithTextCode(ArcgisErrorUnsupportedAuth))
	case strings.Contains(msg, "web adaptor"), strings.Contains(msg, "topology"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryOperation).WithTextCode(ArcgisErrorUnsupportedTopology))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ArcgisErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = clientHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultClientTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultClientTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ArcgisErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ArcgisErrorInsecureCredentials
	case goerrors.CategoryExternal:
		return ArcgisErrorTransportFailure
	case goerrors.CategoryOperation:
		return ArcgisErrorServiceFailure
	default:
		return ArcgisErrorInternal
	}
}

func clientHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// MapError normalizes any error into the module's rich error envelope.
func MapError(err error) *goerrors.Error {
	return clientErrorMapper(err)
}
