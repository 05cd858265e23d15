package client

import "sort"

// Registry resolves authentication clients by name. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry holding the given clients. Registering two
// clients under the same name keeps the last one.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds a client under its own name. Nil clients are ignored.
func (r *Registry) Register(c Client) {
	if c == nil || c.Name() == "" {
		return
	}
	r.clients[c.Name()] = c
}

// Find resolves a client by name. An unresolved name is a fatal
// configuration error, not an authentication failure.
func (r *Registry) Find(name string) (Client, error) {
	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	return nil, NewConfigError("no client registered under name %q", name)
}

// Names lists the registered client names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
