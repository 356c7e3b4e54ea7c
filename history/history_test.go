package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/cover"
)

type recorder struct {
	lines []string
	err   error
}

func (r *recorder) WriteRecord(_ context.Context, line ...string) error {
	r.lines = append(r.lines, line...)
	return r.err
}

var at = time.Unix(1700000000, 0)

func TestLineShutter(t *testing.T) {
	line := Line(cover.State{DeviceId: "hdm:ZigBee:1", DeviceClass: cover.DeviceClassShutter, Position: 40, State: cover.StateOpen}, "Living Room", at)
	assert.Equal(t, `shc_cover,deviceId=hdm:ZigBee:1,room=Living\ Room,deviceClass=shutter position=40i,state="open" 1700000000000000000`, line)
}

func TestLineBlind(t *testing.T) {
	tilt := 30
	line := Line(cover.State{DeviceId: "hdm:ZigBee:3", DeviceClass: cover.DeviceClassBlind, Position: 0, TiltPosition: &tilt, State: cover.StateClosed}, "", at)
	assert.Equal(t, `shc_cover,deviceId=hdm:ZigBee:3,deviceClass=blind position=0i,tilt=30i,state="closed" 1700000000000000000`, line)
}

func TestRecord(t *testing.T) {
	rec := &recorder{}
	w := NewWriter(rec, zap.NewNop().Sugar())
	w.now = func() time.Time { return at }

	require.NoError(t, w.Record(context.Background(), cover.State{UniqueId: "u", DeviceId: "d", DeviceClass: cover.DeviceClassShutter, Position: 1, State: cover.StateOpen}, "a,b"))
	require.Len(t, rec.lines, 1)
	assert.Contains(t, rec.lines[0], `room=a\,b`)

	rec.err = errors.New("influx down")
	assert.ErrorIs(t, w.Record(context.Background(), cover.State{}, ""), rec.err)
	w.Close()
}
