// Copyright 2026 SchemaGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pool resolves a registry name to its reference and hands out clients.
// It is a lookup table, not a circuit breaker: it does not retry and does
// not pool live connections beyond the transport defaults.
type Pool struct {
	refs        map[string]*Ref
	clients     map[string]*Client
	defaultName string
	clientOpts  []ClientOption

	mu          sync.RWMutex
	probeCache  map[string]*HealthStatus
	probeMaxAge time.Duration
}

// NewPool builds a pool from the loaded registry references
func NewPool(refs []*Ref, opts ...ClientOption) (*Pool, error) {
	p := &Pool{
		refs:        make(map[string]*Ref, len(refs)),
		clients:     make(map[string]*Client, len(refs)),
		clientOpts:  opts,
		probeCache:  make(map[string]*HealthStatus),
		probeMaxAge: 30 * time.Second,
	}

	for _, ref := range refs {
		if ref.Name == "" {
			return nil, fmt.Errorf("registry reference with empty name")
		}
		if _, dup := p.refs[ref.Name]; dup {
			return nil, fmt.Errorf("duplicate registry name: %s", ref.Name)
		}
		p.refs[ref.Name] = ref
		p.clients[ref.Name] = NewClient(ref, opts...)
		if ref.IsDefault {
			if p.defaultName != "" {
				return nil, fmt.Errorf("multiple default registries: %s and %s", p.defaultName, ref.Name)
			}
			p.defaultName = ref.Name
		}
	}

	// A single configured registry is the implicit default
	if p.defaultName == "" && len(refs) == 1 {
		p.defaultName = refs[0].Name
	}

	return p, nil
}

// Resolve returns the reference for a registry name. An empty name resolves
// to the default registry.
func (p *Pool) Resolve(name string) (*Ref, error) {
	if name == "" {
		if p.defaultName == "" {
			return nil, &NotFoundError{Kind: "registry", Name: "(default)"}
		}
		name = p.defaultName
	}

	ref, ok := p.refs[name]
	if !ok {
		return nil, &NotFoundError{Kind: "registry", Name: name}
	}
	return ref, nil
}

// Client returns the client for a registry name. An empty name resolves to
// the default registry.
func (p *Pool) Client(name string) (*Client, error) {
	ref, err := p.Resolve(name)
	if err != nil {
		return nil, err
	}
	return p.clients[ref.Name], nil
}

// Names returns the configured registry names
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.refs))
	for name := range p.refs {
		names = append(names, name)
	}
	return names
}

// DefaultName returns the default registry name, empty if none is configured
func (p *Pool) DefaultName() string {
	return p.defaultName
}

// Probe runs a liveness probe against a registry, serving a cached result
// when one is recent enough.
func (p *Pool) Probe(ctx context.Context, name string) (*HealthStatus, error) {
	client, err := p.Client(name)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	cached, ok := p.probeCache[client.Ref().Name]
	p.mu.RUnlock()
	if ok && time.Since(cached.Timestamp) < p.probeMaxAge {
		return cached, nil
	}

	status := client.Ping(ctx)

	p.mu.Lock()
	p.probeCache[client.Ref().Name] = status
	p.mu.Unlock()

	return status, nil
}
