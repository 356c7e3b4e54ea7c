package cover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcDevices"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// Compile-time interface checks against the device library.
var (
	_ Positionable   = (*shcDevices.ShutterControl)(nil)
	_ Positionable   = (*shcDevices.MicromoduleShutterControl)(nil)
	_ TiltableDevice = (*shcDevices.MicromoduleBlinds)(nil)
)

// fakeDevice records writes instead of sending them.
type fakeDevice struct {
	id, serial, root string
	level            float64
	state            shcStructs.OperationState
	currentAngle     float64
	targetAngle      float64
	stops            int
	err              error
}

func (f *fakeDevice) Id() string                                { return f.id }
func (f *fakeDevice) Name() string                              { return "Cover " + f.id }
func (f *fakeDevice) Serial() string                            { return f.serial }
func (f *fakeDevice) RootDeviceId() string                      { return f.root }
func (f *fakeDevice) RoomId() string                            { return "hz_1" }
func (f *fakeDevice) Level() float64                            { return f.level }
func (f *fakeDevice) OperationState() shcStructs.OperationState { return f.state }
func (f *fakeDevice) CurrentAngle() float64                     { return f.currentAngle }

func (f *fakeDevice) SetLevel(_ context.Context, level float64) error {
	if f.err != nil {
		return f.err
	}
	f.level = level
	return nil
}

func (f *fakeDevice) Stop(context.Context) error {
	f.stops++
	return f.err
}

func (f *fakeDevice) SetTargetAngle(_ context.Context, angle float64) error {
	if f.err != nil {
		return f.err
	}
	f.targetAngle = angle
	return nil
}

func newFake(id string) *fakeDevice {
	return &fakeDevice{id: id, serial: "serial-" + id, root: "64-da-a0-00-00-01", state: shcStructs.OperationStateStopped}
}

func TestShutterPositionFollowsLevel(t *testing.T) {
	d := newFake("1")
	e := NewShutter(d, "hub", "entry")

	for i := 0; i <= 100; i++ {
		d.level = float64(i) / 100
		assert.Equal(t, i, e.CurrentPosition(), "level %v", d.level)
	}

	halfway := []struct {
		level    float64
		position int
	}{
		{0.005, 0},
		{0.015, 2},
		{0.025, 2},
		{0.125, 12},
		{0.333, 33},
		{0.625, 62},
		{0.875, 88},
		{0.996, 100},
	}
	for _, tc := range halfway {
		d.level = tc.level
		assert.Equal(t, tc.position, e.CurrentPosition(), "level %v", tc.level)
	}
	d.level = 0.005
	assert.True(t, e.IsClosed())

	d.level = 0.5
	assert.Equal(t, 50, e.CurrentPosition())
	assert.False(t, e.IsClosed())

	d.level = 0
	assert.Equal(t, 0, e.CurrentPosition())
	assert.True(t, e.IsClosed())

	d.level = 0.004
	assert.True(t, e.IsClosed())
}

func TestOpeningClosingFollowOperationState(t *testing.T) {
	d := newFake("1")
	e := NewShutter(d, "hub", "entry")

	for _, state := range shcStructs.OperationStates {
		d.state = state
		assert.Equal(t, state == shcStructs.OperationStateOpening, e.IsOpening(), "state %s", state)
		assert.Equal(t, state == shcStructs.OperationStateClosing, e.IsClosing(), "state %s", state)
	}
}

func TestOpenCloseStop(t *testing.T) {
	ctx := context.Background()
	d := newFake("1")
	e := NewShutter(d, "hub", "entry")

	require.NoError(t, e.Open(ctx))
	assert.Equal(t, 1.0, d.level)
	require.NoError(t, e.Close(ctx))
	assert.Equal(t, 0.0, d.level)
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, 1, d.stops)
}

func TestSetPositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newFake("1")
	e := NewShutter(d, "hub", "entry")

	for p := 0; p <= 100; p++ {
		require.NoError(t, e.SetPosition(ctx, ServiceData{AttrPosition: p}))
		assert.InDelta(t, float64(p)/100.0, d.level, 1e-9)
		assert.Equal(t, p, e.CurrentPosition())
	}

	require.NoError(t, e.SetPosition(ctx, ServiceData{AttrPosition: 37.0}))
	assert.InDelta(t, 0.37, d.level, 1e-9)
}

func TestSetPositionMissingAttribute(t *testing.T) {
	d := newFake("1")
	d.level = 0.3
	e := NewShutter(d, "hub", "entry")

	err := e.SetPosition(context.Background(), ServiceData{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAttribute)
	var missing *MissingAttributeError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, AttrPosition, missing.Key)
	assert.Equal(t, 0.3, d.level)
}

func TestSetPositionRejectsBadValues(t *testing.T) {
	d := newFake("1")
	e := NewShutter(d, "hub", "entry")
	ctx := context.Background()

	assert.ErrorIs(t, e.SetPosition(ctx, ServiceData{AttrPosition: 101}), ErrOutOfRange)
	assert.ErrorIs(t, e.SetPosition(ctx, ServiceData{AttrPosition: -1}), ErrOutOfRange)
	assert.ErrorIs(t, e.SetPosition(ctx, ServiceData{AttrPosition: "half"}), ErrInvalidAttribute)
	assert.ErrorIs(t, e.SetPosition(ctx, ServiceData{AttrPosition: true}), ErrInvalidAttribute)
	assert.Equal(t, 0.0, d.level)
}

func TestDeviceErrorsPropagate(t *testing.T) {
	boom := errors.New("hub unreachable")
	d := newFake("1")
	d.err = boom
	e := NewBlind(d, "hub", "entry")
	ctx := context.Background()

	assert.ErrorIs(t, e.Open(ctx), boom)
	assert.ErrorIs(t, e.Stop(ctx), boom)
	assert.ErrorIs(t, e.SetPosition(ctx, ServiceData{AttrPosition: 10}), boom)
	assert.ErrorIs(t, e.OpenTilt(ctx), boom)
}

func TestShutterFeatures(t *testing.T) {
	e := NewShutter(newFake("1"), "hub", "entry")

	assert.Equal(t, DeviceClassShutter, e.DeviceClass())
	assert.Equal(t, FeatureOpen|FeatureClose|FeatureStop|FeatureSetPosition, e.SupportedFeatures())
	assert.False(t, e.Supports(FeatureOpenTilt))

	_, ok := e.CurrentTiltPosition()
	assert.False(t, ok)
	assert.ErrorIs(t, e.OpenTilt(context.Background()), ErrNotSupported)
	assert.ErrorIs(t, e.SetTiltPosition(context.Background(), ServiceData{AttrTiltPosition: 1}), ErrNotSupported)
}

func TestBlindTilt(t *testing.T) {
	ctx := context.Background()
	d := newFake("3")
	e := NewBlind(d, "hub", "entry")

	assert.Equal(t, DeviceClassBlind, e.DeviceClass())
	assert.True(t, e.Supports(FeatureOpenTilt|FeatureCloseTilt|FeatureSetTiltPosition|FeatureSetPosition|FeatureStop))
	assert.False(t, e.Supports(FeatureStopTilt))

	for i := 0; i <= 100; i++ {
		d.currentAngle = float64(i) / 100
		tilt, ok := e.CurrentTiltPosition()
		require.True(t, ok)
		assert.Equal(t, i, tilt)
	}

	for angle, want := range map[float64]int{0.005: 0, 0.025: 2, 0.125: 12, 0.625: 62, 0.875: 88} {
		d.currentAngle = angle
		tilt, _ := e.CurrentTiltPosition()
		assert.Equal(t, want, tilt, "angle %v", angle)
	}

	require.NoError(t, e.OpenTilt(ctx))
	assert.Equal(t, 1.0, d.targetAngle)
	require.NoError(t, e.CloseTilt(ctx))
	assert.Equal(t, 0.0, d.targetAngle)
	require.NoError(t, e.SetTiltPosition(ctx, ServiceData{AttrTiltPosition: 25}))
	assert.InDelta(t, 0.25, d.targetAngle, 1e-9)

	err := e.SetTiltPosition(ctx, ServiceData{AttrPosition: 25})
	assert.ErrorIs(t, err, ErrMissingAttribute)
	assert.InDelta(t, 0.25, d.targetAngle, 1e-9)

	// blinds keep every shutter behaviour
	require.NoError(t, e.SetPosition(ctx, ServiceData{AttrPosition: 80}))
	assert.InDelta(t, 0.8, d.level, 1e-9)
}

func TestIdentity(t *testing.T) {
	e := NewShutter(newFake("1"), "hub-1", "entry-1")

	assert.Equal(t, "64-da-a0-00-00-01_serial-1", e.UniqueId())
	assert.Equal(t, "1", e.DeviceId())
	assert.Equal(t, "hub-1", e.ParentId())
	assert.Equal(t, "entry-1", e.EntryId())
	assert.Equal(t, "Cover 1", e.Name())
}

func TestCallDispatch(t *testing.T) {
	ctx := context.Background()
	d := newFake("1")
	shutter := NewShutter(d, "hub", "entry")

	require.NoError(t, shutter.Call(ctx, ServiceOpen, nil))
	assert.Equal(t, 1.0, d.level)
	require.NoError(t, shutter.Call(ctx, ServiceSetPosition, ServiceData{AttrPosition: 40}))
	assert.InDelta(t, 0.4, d.level, 1e-9)
	assert.ErrorIs(t, shutter.Call(ctx, ServiceSetPosition, nil), ErrMissingAttribute)
	assert.ErrorIs(t, shutter.Call(ctx, ServiceOpenTilt, nil), ErrNotSupported)
	assert.ErrorIs(t, shutter.Call(ctx, "toggle", nil), ErrUnknownService)

	b := newFake("3")
	blind := NewBlind(b, "hub", "entry")
	require.NoError(t, blind.Call(ctx, ServiceSetTiltPosition, ServiceData{AttrTiltPosition: 60}))
	assert.InDelta(t, 0.6, b.targetAngle, 1e-9)
	assert.ErrorIs(t, blind.Call(ctx, "stop_cover_tilt", nil), ErrUnknownService)
}

func TestSnapshot(t *testing.T) {
	d := newFake("3")
	d.level = 0.42
	d.currentAngle = 0.1
	e := NewBlind(d, "hub", "entry")

	s := e.Snapshot()
	assert.Equal(t, StateOpen, s.State)
	assert.Equal(t, 42, s.Position)
	require.NotNil(t, s.TiltPosition)
	assert.Equal(t, 10, *s.TiltPosition)

	d.state = shcStructs.OperationStateClosing
	assert.Equal(t, StateClosing, e.Snapshot().State)

	d.state = shcStructs.OperationStateStopped
	d.level = 0
	assert.Equal(t, StateClosed, e.Snapshot().State)

	assert.Nil(t, NewShutter(d, "hub", "entry").Snapshot().TiltPosition)
}
