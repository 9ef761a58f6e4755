package protocol

import (
	"context"
	"sync"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// Registry holds the methods enabled at startup.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
	order     []string
}

func NewRegistry(ps ...Protocol) *Registry {
	r := &Registry{protocols: map[string]Protocol{}}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing a method of the same name.
func (r *Registry) Register(p Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.protocols[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.protocols[p.Name()] = p
}

func (r *Registry) Get(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	return p, ok
}

// Names lists the registered methods in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ResolveGrant tries the token against every method the application supports.
func (r *Registry) ResolveGrant(ctx context.Context, app *models.Application, token string) (*models.ApplicationGrant, Protocol, error) {
	if token == "" {
		return nil, nil, errors.MissingArgument("token")
	}
	for _, name := range r.Names() {
		if !app.Supports(name) {
			continue
		}
		p, _ := r.Get(name)
		g, err := p.BeforeAPI(ctx, app, token)
		if errors.Is(err, errors.ErrGrantInvalid) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return g, p, nil
	}
	return nil, nil, errors.ErrGrantInvalid
}
