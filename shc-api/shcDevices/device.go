package shcDevices

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// StateWriter sends a service state to the controller.
type StateWriter interface {
	PutServiceState(ctx context.Context, deviceId string, serviceId string, state any) error
}

// Device is the common part of every device handle.
type Device struct {
	info   shcStructs.Device
	writer StateWriter
}

func (d *Device) Id() string           { return d.info.Id }
func (d *Device) Name() string         { return d.info.Name }
func (d *Device) Serial() string       { return d.info.Serial }
func (d *Device) RootDeviceId() string { return d.info.RootDeviceId }
func (d *Device) DeviceModel() string  { return d.info.DeviceModel }
func (d *Device) RoomId() string       { return d.info.Room }

func (d *Device) put(ctx context.Context, serviceId string, state any) error {
	if err := d.writer.PutServiceState(ctx, d.info.Id, serviceId, state); err != nil {
		return fmt.Errorf("device %s: %w", d.info.Id, err)
	}
	return nil
}

// decodeState converts a raw state map into one of the typed states.
func decodeState(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// serviceUpdater is implemented by handles that consume service states.
type serviceUpdater interface {
	Id() string
	updateService(serviceId string, state map[string]any) (bool, error)
}
