package endpoint

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-arcgis/core"
)

// Topology distinguishes the two deployment shapes.
type Topology string

const (
	// TopologyDirect reaches each service on its own conventional port.
	TopologyDirect Topology = "direct"
	// TopologyAdaptor reaches every service through a shared front-end host,
	// each under its own directory.
	TopologyAdaptor Topology = "adaptor"
)

// Identity is the immutable server identity derived once from the raw server
// URL and adaptor configuration. Never mutated after construction.
type Identity struct {
	https      bool
	host       string
	publicHost string
	adaptors   map[Kind]string
}

// NewIdentity parses the root server URL, excluding any directories, and
// records the deployment topology. Adaptor names apply to the portal and
// server services only; the event service always connects directly.
func NewIdentity(server string, adaptors core.WebAdaptorConfig, publicHost string) (Identity, error) {
	parsed, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return Identity{}, core.NewInvalidURLError(server, err.Error())
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return Identity{}, core.NewInvalidURLError(server, "missing either its scheme or host")
	}

	id := Identity{
		https:      strings.EqualFold(parsed.Scheme, "https"),
		host:       parsed.Host,
		publicHost: strings.TrimSpace(publicHost),
		adaptors:   map[Kind]string{},
	}
	if name := strings.TrimSpace(adaptors.Portal); name != "" {
		id.adaptors[KindPortal] = normalizeDirectory(name)
	}
	if name := strings.TrimSpace(adaptors.Server); name != "" {
		id.adaptors[KindServer] = normalizeDirectory(name)
	}
	return id, nil
}

// UsesHTTPS reports whether the identity was configured with an https URL.
func (id Identity) UsesHTTPS() bool {
	return id.https
}

// Scheme returns http or https.
func (id Identity) Scheme() string {
	if id.https {
		return "https"
	}
	return "http"
}

// Host returns the configured host, including an explicit port when one was
// supplied.
func (id Identity) Host() string {
	return id.host
}

// PublicHost returns the host the deployment advertises publicly, or empty.
func (id Identity) PublicHost() string {
	return id.publicHost
}

// Adaptor returns the normalized adaptor directory for a service, when the
// adaptor topology is configured for it.
func (id Identity) Adaptor(kind Kind) (string, bool) {
	name, ok := id.adaptors[kind]
	return name, ok
}

// AdaptorTopology reports whether any web adaptor is configured.
func (id Identity) AdaptorTopology() bool {
	return len(id.adaptors) > 0
}

// hostFor returns host[:port] for a service: the explicit port when the URL
// carried one, the conventional per-service port for direct connections, and
// the bare host when going through an adaptor.
func (id Identity) hostFor(kind Kind) string {
	if strings.Contains(id.host, ":") {
		return id.host
	}
	if _, ok := id.adaptors[kind]; ok {
		return id.host
	}
	props := kindProperties[kind]
	port := props.portHTTP
	if id.https {
		port = props.portHTTPS
	}
	return id.host + ":" + strconv.Itoa(port)
}

func normalizeDirectory(name string) string {
	trimmed := strings.Trim(strings.TrimSpace(name), "/\\")
	return "/" + trimmed
}
