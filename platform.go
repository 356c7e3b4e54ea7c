package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/cover"
	"github.com/zabeloliver/shc-cover-bridge/registry"
)

// EntityRegistrar persists registered entities.
type EntityRegistrar interface {
	Register(ctx context.Context, e registry.Entry) error
}

// ChangeListener is told about an entity whose device reported new state.
type ChangeListener func(ctx context.Context, e *cover.Entity)

// Platform holds the cover entities and fans device changes out to the
// listeners (MQTT, history).
type Platform struct {
	mu        sync.RWMutex
	entities  map[string]*cover.Entity
	byDevice  map[string][]*cover.Entity
	order     []*cover.Entity
	listeners []ChangeListener

	registrar EntityRegistrar
	logger    *zap.SugaredLogger
}

func NewPlatform(registrar EntityRegistrar, logger *zap.SugaredLogger) *Platform {
	return &Platform{
		entities:  make(map[string]*cover.Entity),
		byDevice:  make(map[string][]*cover.Entity),
		registrar: registrar,
		logger:    logger,
	}
}

// AddEntities is the cover.AddEntitiesFunc of the platform.
func (p *Platform) AddEntities(entities []*cover.Entity) {
	ctx := context.Background()
	for _, e := range entities {
		err := p.registrar.Register(ctx, registry.Entry{
			Platform: cover.PlatformCover,
			UniqueId: e.UniqueId(),
			DeviceId: e.DeviceId(),
			EntryId:  e.EntryId(),
			Name:     e.Name(),
		})
		if err != nil {
			p.logger.Errorf("Registering %s: %v", e.UniqueId(), err)
		}

		p.mu.Lock()
		if _, exists := p.entities[e.UniqueId()]; !exists {
			p.order = append(p.order, e)
		}
		p.entities[e.UniqueId()] = e
		p.byDevice[e.DeviceId()] = append(p.byDevice[e.DeviceId()], e)
		p.mu.Unlock()
		p.logger.Infof("Added %s cover %s (%s)", e.DeviceClass(), e.Name(), e.UniqueId())
	}
}

func (p *Platform) Entity(uniqueId string) (*cover.Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entities[uniqueId]
	return e, ok
}

// Entities returns the entities in the order they were added.
func (p *Platform) Entities() []*cover.Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*cover.Entity, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Platform) OnChange(l ChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// DeviceChanged notifies the listeners for every entity of deviceId.
func (p *Platform) DeviceChanged(deviceId string) {
	p.mu.RLock()
	entities := p.byDevice[deviceId]
	listeners := p.listeners
	p.mu.RUnlock()

	ctx := context.Background()
	for _, e := range entities {
		for _, l := range listeners {
			l(ctx, e)
		}
	}
}
