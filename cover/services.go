package cover

import (
	"context"
	"errors"
	"fmt"
)

// Service names as used by Home Assistant's cover domain.
const (
	ServiceOpen            = "open_cover"
	ServiceClose           = "close_cover"
	ServiceStop            = "stop_cover"
	ServiceSetPosition     = "set_cover_position"
	ServiceOpenTilt        = "open_cover_tilt"
	ServiceCloseTilt       = "close_cover_tilt"
	ServiceSetTiltPosition = "set_cover_tilt_position"
)

var ErrUnknownService = errors.New("cover: unknown service")

type serviceHandler struct {
	feature Feature
	call    func(e *Entity, ctx context.Context, data ServiceData) error
}

var services = map[string]serviceHandler{
	ServiceOpen:            {FeatureOpen, func(e *Entity, ctx context.Context, _ ServiceData) error { return e.Open(ctx) }},
	ServiceClose:           {FeatureClose, func(e *Entity, ctx context.Context, _ ServiceData) error { return e.Close(ctx) }},
	ServiceStop:            {FeatureStop, func(e *Entity, ctx context.Context, _ ServiceData) error { return e.Stop(ctx) }},
	ServiceSetPosition:     {FeatureSetPosition, (*Entity).SetPosition},
	ServiceOpenTilt:        {FeatureOpenTilt, func(e *Entity, ctx context.Context, _ ServiceData) error { return e.OpenTilt(ctx) }},
	ServiceCloseTilt:       {FeatureCloseTilt, func(e *Entity, ctx context.Context, _ ServiceData) error { return e.CloseTilt(ctx) }},
	ServiceSetTiltPosition: {FeatureSetTiltPosition, (*Entity).SetTiltPosition},
}

// Call dispatches a service call to the entity. Features the entity does not
// declare fail with ErrNotSupported before the device is touched.
func (e *Entity) Call(ctx context.Context, service string, data ServiceData) error {
	h, ok := services[service]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if !e.Supports(h.feature) {
		return fmt.Errorf("%w: %s on %s", ErrNotSupported, service, e.UniqueId())
	}
	if data == nil {
		data = ServiceData{}
	}
	return h.call(e, ctx, data)
}

// State is a point-in-time snapshot of an entity.
type State struct {
	UniqueId     string      `json:"unique_id"`
	DeviceId     string      `json:"device_id"`
	Name         string      `json:"name"`
	DeviceClass  DeviceClass `json:"device_class"`
	Features     Feature     `json:"supported_features"`
	State        string      `json:"state"`
	Position     int         `json:"current_position"`
	TiltPosition *int        `json:"current_tilt_position,omitempty"`
	IsOpening    bool        `json:"is_opening"`
	IsClosing    bool        `json:"is_closing"`
	IsClosed     bool        `json:"is_closed"`
}

// Cover states.
const (
	StateOpen    = "open"
	StateClosed  = "closed"
	StateOpening = "opening"
	StateClosing = "closing"
)

func (e *Entity) Snapshot() State {
	s := State{
		UniqueId:    e.UniqueId(),
		DeviceId:    e.DeviceId(),
		Name:        e.Name(),
		DeviceClass: e.deviceClass,
		Features:    e.features,
		Position:    e.CurrentPosition(),
		IsOpening:   e.IsOpening(),
		IsClosing:   e.IsClosing(),
	}
	s.IsClosed = s.Position == 0
	if tilt, ok := e.CurrentTiltPosition(); ok {
		s.TiltPosition = &tilt
	}
	switch {
	case s.IsOpening:
		s.State = StateOpening
	case s.IsClosing:
		s.State = StateClosing
	case s.IsClosed:
		s.State = StateClosed
	default:
		s.State = StateOpen
	}
	return s
}
