package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver maps inbound channel addresses to tenants.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	if store == nil {
		panic("clinic: tenant store required")
	}
	return &Resolver{store: store}
}

// NormalizeAddress turns a channel address into a tenant id: the value is
// trimmed and the first ':' becomes '_' (whatsapp:+1415... -> whatsapp_+1415...).
func NormalizeAddress(addr string) string {
	return strings.Replace(strings.TrimSpace(addr), ":", "_", 1)
}

// Resolve returns the tenant for addr. Unknown or inactive tenants report
// found=false with a nil error; store failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, addr string) (*Tenant, bool, error) {
	id := NormalizeAddress(addr)
	if id == "" {
		return nil, false, nil
	}
	t, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("clinic: resolve %s: %w", id, err)
	}
	if t == nil || !t.Active {
		return nil, false, nil
	}
	if err := t.Validate(); err != nil {
		return nil, false, err
	}
	return t, true, nil
}
