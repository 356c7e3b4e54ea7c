package shcDevices

import (
	"context"
	"sync"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// ShutterControl is a BBL shutter actuator. Setters only issue the request;
// the new level arrives later through the event stream.
type ShutterControl struct {
	Device

	mu             sync.RWMutex
	level          float64
	operationState shcStructs.OperationState
}

func newShutterControl(info shcStructs.Device, writer StateWriter) *ShutterControl {
	s := &ShutterControl{}
	s.init(info, writer)
	return s
}

func (s *ShutterControl) init(info shcStructs.Device, writer StateWriter) {
	s.Device = Device{info: info, writer: writer}
	s.operationState = shcStructs.OperationStateStopped
}

// Level is the last reported position, 0.0 closed to 1.0 open.
func (s *ShutterControl) Level() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

func (s *ShutterControl) OperationState() shcStructs.OperationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operationState
}

func (s *ShutterControl) SetLevel(ctx context.Context, level float64) error {
	return s.put(ctx, shcStructs.ServiceShutterControl, shcStructs.ShutterControlState{
		Type:  shcStructs.TypeShutterControlState,
		Level: &level,
	})
}

func (s *ShutterControl) Stop(ctx context.Context) error {
	return s.put(ctx, shcStructs.ServiceShutterControl, shcStructs.ShutterControlState{
		Type:           shcStructs.TypeShutterControlState,
		OperationState: shcStructs.OperationStateStopped,
	})
}

func (s *ShutterControl) updateService(serviceId string, raw map[string]any) (bool, error) {
	if serviceId != shcStructs.ServiceShutterControl {
		return false, nil
	}
	var state shcStructs.ShutterControlState
	if err := decodeState(raw, &state); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Level != nil {
		s.level = *state.Level
	}
	if state.OperationState != "" {
		s.operationState = state.OperationState
	}
	return true, nil
}

// MicromoduleShutterControl is a shutter behind a Light/Shutter Control II
// micromodule.
type MicromoduleShutterControl struct {
	ShutterControl
}

func newMicromoduleShutterControl(info shcStructs.Device, writer StateWriter) *MicromoduleShutterControl {
	m := &MicromoduleShutterControl{}
	m.init(info, writer)
	return m
}

// MicromoduleBlinds is a micromodule driving venetian blinds. Position
// behaves like a shutter, slats are set through BlindsControl.
type MicromoduleBlinds struct {
	MicromoduleShutterControl

	angleMu      sync.RWMutex
	currentAngle float64
	targetAngle  float64
}

func newMicromoduleBlinds(info shcStructs.Device, writer StateWriter) *MicromoduleBlinds {
	b := &MicromoduleBlinds{}
	b.init(info, writer)
	return b
}

func (b *MicromoduleBlinds) CurrentAngle() float64 {
	b.angleMu.RLock()
	defer b.angleMu.RUnlock()
	return b.currentAngle
}

func (b *MicromoduleBlinds) TargetAngle() float64 {
	b.angleMu.RLock()
	defer b.angleMu.RUnlock()
	return b.targetAngle
}

func (b *MicromoduleBlinds) SetTargetAngle(ctx context.Context, angle float64) error {
	return b.put(ctx, shcStructs.ServiceBlindsControl, shcStructs.BlindsControlState{
		Type:        shcStructs.TypeBlindsControlState,
		TargetAngle: &angle,
	})
}

func (b *MicromoduleBlinds) updateService(serviceId string, raw map[string]any) (bool, error) {
	if serviceId != shcStructs.ServiceBlindsControl {
		return b.ShutterControl.updateService(serviceId, raw)
	}
	var state shcStructs.BlindsControlState
	if err := decodeState(raw, &state); err != nil {
		return false, err
	}
	b.angleMu.Lock()
	defer b.angleMu.Unlock()
	if state.CurrentAngle != nil {
		b.currentAngle = *state.CurrentAngle
	}
	if state.TargetAngle != nil {
		b.targetAngle = *state.TargetAngle
	}
	return true, nil
}
