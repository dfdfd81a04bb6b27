package endpoint

import (
	"sync"

	"github.com/goliatone/go-arcgis/core"
)

// Descriptor is the resolved address set for one service: the public REST
// root, the privileged admin root, and the referer presented during token
// requests. Computed once per kind and cached for the resolver's lifetime.
type Descriptor struct {
	Kind       Kind
	BaseURL    string
	RestURL    string
	AdminURL   string
	RefererURL string
	Topology   Topology
	// AdminAuthRequired marks roots that reject anonymous access outright.
	AdminAuthRequired bool
}

// URLFor composes the absolute URL for a relative request path.
func (d Descriptor) URLFor(path string, admin bool) string {
	root := d.RestURL
	if admin {
		root = d.AdminURL
	}
	return JoinPath(root, path)
}

// Resolver lazily derives one Descriptor per service kind from the identity.
// Safe for concurrent use; descriptors never change once computed.
type Resolver struct {
	identity Identity

	mu    sync.Mutex
	cache map[Kind]Descriptor
}

func NewResolver(identity Identity) *Resolver {
	return &Resolver{
		identity: identity,
		cache:    map[Kind]Descriptor{},
	}
}

// Identity returns the immutable identity the resolver derives from.
func (r *Resolver) Identity() Identity {
	return r.identity
}

// Resolve returns the descriptor for a service kind. The event service is
// refused under the adaptor topology before any network call is attempted.
func (r *Resolver) Resolve(kind Kind) (Descriptor, error) {
	if !kind.Valid() {
		return Descriptor{}, core.NewBadInputError(`endpoint: kind must be one of ["portal", "server", "geoevent"]`)
	}
	if kind == KindGeoEvent && r.identity.AdaptorTopology() {
		return Descriptor{}, core.NewUnsupportedTopologyError(
			"endpoint: reaching the geoevent service via a proxied (web adaptor) endpoint is not supported; use a direct connection",
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if desc, ok := r.cache[kind]; ok {
		return desc, nil
	}

	desc := r.derive(kind)
	r.cache[kind] = desc
	return desc, nil
}

func (r *Resolver) derive(kind Kind) Descriptor {
	props := kindProperties[kind]
	id := r.identity

	topology := TopologyDirect
	directory := props.directory
	if adaptor, ok := id.Adaptor(kind); ok {
		topology = TopologyAdaptor
		directory = adaptor
	}

	origin := id.Scheme() + "://" + id.hostFor(kind)
	base := origin + directory

	return Descriptor{
		Kind:              kind,
		BaseURL:           base,
		RestURL:           base + props.restDir,
		AdminURL:          base + props.adminDir,
		RefererURL:        origin,
		Topology:          topology,
		AdminAuthRequired: true,
	}
}
