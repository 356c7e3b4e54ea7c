package shcDevices

import (
	"fmt"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// DeviceHelper sorts the controller's devices into typed handles.
type DeviceHelper struct {
	shutterControls            []*ShutterControl
	micromoduleShutterControls []*MicromoduleShutterControl
	micromoduleBlinds          []*MicromoduleBlinds
	byId                       map[string]serviceUpdater
}

// NewDeviceHelper builds handles for the cover models and seeds them with the
// service states. Devices of other models are ignored.
func NewDeviceHelper(devices []shcStructs.Device, services []shcStructs.DeviceService, writer StateWriter) (*DeviceHelper, error) {
	h := &DeviceHelper{byId: make(map[string]serviceUpdater)}
	for _, d := range devices {
		switch d.DeviceModel {
		case shcStructs.ModelShutterControl:
			s := newShutterControl(d, writer)
			h.shutterControls = append(h.shutterControls, s)
			h.byId[d.Id] = s
		case shcStructs.ModelMicromoduleShutterControl:
			s := newMicromoduleShutterControl(d, writer)
			h.micromoduleShutterControls = append(h.micromoduleShutterControls, s)
			h.byId[d.Id] = s
		case shcStructs.ModelMicromoduleBlinds:
			b := newMicromoduleBlinds(d, writer)
			h.micromoduleBlinds = append(h.micromoduleBlinds, b)
			h.byId[d.Id] = b
		}
	}
	for _, s := range services {
		if _, err := h.apply(s.DeviceId, s.Id, s.State); err != nil {
			return nil, fmt.Errorf("service %s of %s: %w", s.Id, s.DeviceId, err)
		}
	}
	return h, nil
}

func (h *DeviceHelper) ShutterControls() []*ShutterControl {
	return h.shutterControls
}

func (h *DeviceHelper) MicromoduleShutterControls() []*MicromoduleShutterControl {
	return h.micromoduleShutterControls
}

func (h *DeviceHelper) MicromoduleBlinds() []*MicromoduleBlinds {
	return h.micromoduleBlinds
}

// ProcessEvent applies a long-poll event. It reports whether a known device
// consumed it.
func (h *DeviceHelper) ProcessEvent(event shcStructs.DeviceEvent) (bool, error) {
	if event.Type != "" && event.Type != shcStructs.TypeDeviceServiceData {
		return false, nil
	}
	return h.apply(event.DeviceId, event.Id, event.State)
}

func (h *DeviceHelper) apply(deviceId string, serviceId string, state map[string]any) (bool, error) {
	d, ok := h.byId[deviceId]
	if !ok || state == nil {
		return false, nil
	}
	return d.updateService(serviceId, state)
}
