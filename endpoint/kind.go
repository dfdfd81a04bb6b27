// Package endpoint derives the canonical URLs of the ArcGIS Enterprise
// services from a raw server URL and the deployment topology. Everything here
// is computed once; the rest of the module treats the derived URLs as opaque
// prefixes.
package endpoint

import "fmt"

// Kind selects one of the enterprise services. The set is closed; topology
// and path rules are fixed per variant at construction time.
type Kind string

const (
	KindPortal   Kind = "portal"
	KindServer   Kind = "server"
	KindGeoEvent Kind = "geoevent"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPortal, KindServer, KindGeoEvent:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a service name into a Kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	if !kind.Valid() {
		return "", fmt.Errorf(`endpoint: kind must be one of ["portal", "server", "geoevent"], got %q`, value)
	}
	return kind, nil
}

// properties carries the per-service deployment conventions: default ports
// for direct connections, the root directory, and the public/admin REST
// directories.
type properties struct {
	portHTTP  int
	portHTTPS int
	directory string
	restDir   string
	adminDir  string
}

var kindProperties = map[Kind]properties{
	KindPortal: {
		portHTTP:  7080,
		portHTTPS: 7443,
		directory: "/arcgis",
		restDir:   "/sharing/rest",
		adminDir:  "/portaladmin",
	},
	KindServer: {
		portHTTP:  6080,
		portHTTPS: 6443,
		directory: "/arcgis",
		restDir:   "/rest",
		adminDir:  "/admin",
	},
	KindGeoEvent: {
		portHTTP:  6180,
		portHTTPS: 6143,
		directory: "/geoevent",
		restDir:   "/rest",
		adminDir:  "/admin",
	},
}

// InfoPath returns the service info path below the base URL, used to discover
// the auth scheme and token service. The event service exposes no info
// endpoint of its own.
func (k Kind) InfoPath() string {
	switch k {
	case KindPortal:
		return "/sharing/rest/info"
	case KindServer:
		return "/rest/info"
	}
	return ""
}

// GenerateTokenPath returns the conventional token generation path below the
// base URL, used when the info endpoint cannot report a token service URL.
func (k Kind) GenerateTokenPath() string {
	switch k {
	case KindPortal:
		return "/sharing/rest/generateToken"
	case KindServer:
		return "/rest/generateToken"
	}
	return ""
}
