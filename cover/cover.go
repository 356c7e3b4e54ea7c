// Package cover exposes SHC shutter and blind devices as cover entities.
//
// An Entity never stores device state. Every getter samples the device at
// call time and every command issues a single write without waiting for the
// controller to finish moving, so reads may lag the last command.
package cover

import (
	"context"
	"math"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// Device identifies a controller device.
type Device interface {
	Id() string
	Name() string
	Serial() string
	RootDeviceId() string
	RoomId() string
}

// Positionable is a device with a fractional level in [0, 1].
type Positionable interface {
	Device
	Level() float64
	SetLevel(ctx context.Context, level float64) error
	Stop(ctx context.Context) error
	OperationState() shcStructs.OperationState
}

// Tiltable is a device with a fractional slat angle in [0, 1].
type Tiltable interface {
	CurrentAngle() float64
	SetTargetAngle(ctx context.Context, angle float64) error
}

// TiltableDevice is a Positionable device that also tilts.
type TiltableDevice interface {
	Positionable
	Tiltable
}

// Entity is a cover backed by one device. Blinds carry a Tiltable, shutters
// leave it nil.
type Entity struct {
	device      Positionable
	tilt        Tiltable
	parentId    string
	entryId     string
	deviceClass DeviceClass
	features    Feature
}

// NewShutter wraps a shutter-type device.
func NewShutter(device Positionable, parentId string, entryId string) *Entity {
	return &Entity{
		device:      device,
		parentId:    parentId,
		entryId:     entryId,
		deviceClass: DeviceClassShutter,
		features:    shutterFeatures,
	}
}

// NewBlind wraps a blind-type device.
func NewBlind(device TiltableDevice, parentId string, entryId string) *Entity {
	return &Entity{
		device:      device,
		tilt:        device,
		parentId:    parentId,
		entryId:     entryId,
		deviceClass: DeviceClassBlind,
		features:    blindFeatures,
	}
}

// UniqueId is stable across controller IP changes.
func (e *Entity) UniqueId() string {
	return UniqueId(e.device)
}

func (e *Entity) Name() string               { return e.device.Name() }
func (e *Entity) DeviceId() string           { return e.device.Id() }
func (e *Entity) RoomId() string             { return e.device.RoomId() }
func (e *Entity) ParentId() string           { return e.parentId }
func (e *Entity) EntryId() string            { return e.entryId }
func (e *Entity) DeviceClass() DeviceClass   { return e.deviceClass }
func (e *Entity) SupportedFeatures() Feature { return e.features }

func (e *Entity) Supports(f Feature) bool {
	return e.features.Has(f)
}

// CurrentPosition is the position in percent, 0 closed and 100 open.
func (e *Entity) CurrentPosition() int {
	return toPercent(e.device.Level())
}

func (e *Entity) IsClosed() bool {
	return e.CurrentPosition() == 0
}

func (e *Entity) IsOpening() bool {
	return e.device.OperationState() == shcStructs.OperationStateOpening
}

func (e *Entity) IsClosing() bool {
	return e.device.OperationState() == shcStructs.OperationStateClosing
}

func (e *Entity) Open(ctx context.Context) error {
	return e.device.SetLevel(ctx, 1.0)
}

func (e *Entity) Close(ctx context.Context) error {
	return e.device.SetLevel(ctx, 0.0)
}

func (e *Entity) Stop(ctx context.Context) error {
	return e.device.Stop(ctx)
}

// SetPosition moves to data[AttrPosition] percent.
func (e *Entity) SetPosition(ctx context.Context, data ServiceData) error {
	position, err := data.percent(AttrPosition)
	if err != nil {
		return err
	}
	return e.device.SetLevel(ctx, position/100.0)
}

// CurrentTiltPosition is the slat angle in percent. ok is false for covers
// without tilt.
func (e *Entity) CurrentTiltPosition() (position int, ok bool) {
	if e.tilt == nil {
		return 0, false
	}
	return toPercent(e.tilt.CurrentAngle()), true
}

func (e *Entity) OpenTilt(ctx context.Context) error {
	if e.tilt == nil {
		return ErrNotSupported
	}
	return e.tilt.SetTargetAngle(ctx, 1.0)
}

func (e *Entity) CloseTilt(ctx context.Context) error {
	if e.tilt == nil {
		return ErrNotSupported
	}
	return e.tilt.SetTargetAngle(ctx, 0.0)
}

// SetTiltPosition tilts to data[AttrTiltPosition] percent.
func (e *Entity) SetTiltPosition(ctx context.Context, data ServiceData) error {
	if e.tilt == nil {
		return ErrNotSupported
	}
	position, err := data.percent(AttrTiltPosition)
	if err != nil {
		return err
	}
	return e.tilt.SetTargetAngle(ctx, position/100.0)
}

// toPercent rounds half to even, so 0.005 reads as closed.
func toPercent(fraction float64) int {
	return int(math.RoundToEven(fraction * 100.0))
}
