package cover

import (
	"context"
	"fmt"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcDevices"
)

// PlatformCover tags registry entries created by this platform.
const PlatformCover = "cover"

// Source enumerates the cover devices of one controller.
type Source interface {
	// HubId identifies the controller owning the devices.
	HubId() string
	ShutterControls() []Positionable
	MicromoduleShutterControls() []Positionable
	MicromoduleBlinds() []TiltableDevice
}

// MigrateFunc moves a device's registry entry to its current unique id.
type MigrateFunc func(ctx context.Context, platform string, device Device) error

// AddEntitiesFunc hands new entities to the host.
type AddEntitiesFunc func(entities []*Entity)

// SetupEntry builds one entity per cover device of source and adds them in a
// single call. add is not called when there are no devices.
func SetupEntry(ctx context.Context, source Source, entryId string, migrate MigrateFunc, add AddEntitiesFunc) error {
	var entities []*Entity
	hubId := source.HubId()

	var shutters []Positionable
	shutters = append(shutters, source.ShutterControls()...)
	shutters = append(shutters, source.MicromoduleShutterControls()...)
	for _, d := range shutters {
		if err := migrate(ctx, PlatformCover, d); err != nil {
			return fmt.Errorf("migrating unique id of %s: %w", d.Id(), err)
		}
		entities = append(entities, NewShutter(d, hubId, entryId))
	}

	for _, d := range source.MicromoduleBlinds() {
		if err := migrate(ctx, PlatformCover, d); err != nil {
			return fmt.Errorf("migrating unique id of %s: %w", d.Id(), err)
		}
		entities = append(entities, NewBlind(d, hubId, entryId))
	}

	if len(entities) > 0 {
		add(entities)
	}
	return nil
}

type sessionSource struct {
	session *shcDevices.Session
}

// NewSessionSource adapts a loaded controller session.
func NewSessionSource(session *shcDevices.Session) Source {
	return sessionSource{session: session}
}

func (s sessionSource) HubId() string {
	return s.session.Information().UniqueId()
}

func (s sessionSource) ShutterControls() []Positionable {
	var out []Positionable
	for _, d := range s.session.DeviceHelper().ShutterControls() {
		out = append(out, d)
	}
	return out
}

func (s sessionSource) MicromoduleShutterControls() []Positionable {
	var out []Positionable
	for _, d := range s.session.DeviceHelper().MicromoduleShutterControls() {
		out = append(out, d)
	}
	return out
}

func (s sessionSource) MicromoduleBlinds() []TiltableDevice {
	var out []TiltableDevice
	for _, d := range s.session.DeviceHelper().MicromoduleBlinds() {
		out = append(out, d)
	}
	return out
}
