// Package history writes cover position samples to InfluxDB.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/cover"
)

const measurement = "shc_cover"

// Config maps to the influxdb section of config.yaml. An empty Host disables
// history.
type Config struct {
	Host   string `mapstructure:"host"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// RecordWriter matches api.WriteAPIBlocking.
type RecordWriter interface {
	WriteRecord(ctx context.Context, line ...string) error
}

type Writer struct {
	api    RecordWriter
	close  func()
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New connects to InfluxDB with a blocking write API.
func New(cfg Config, logger *zap.SugaredLogger) *Writer {
	client := influxdb2.NewClient(cfg.Host, cfg.Token)
	w := NewWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
	w.close = client.Close
	return w
}

func NewWriter(api RecordWriter, logger *zap.SugaredLogger) *Writer {
	return &Writer{api: api, now: time.Now, logger: logger}
}

// Record writes one sample of state.
func (w *Writer) Record(ctx context.Context, state cover.State, room string) error {
	line := Line(state, room, w.now())
	w.logger.Debug(line)
	if err := w.api.WriteRecord(ctx, line); err != nil {
		return fmt.Errorf("writing history of %s: %w", state.UniqueId, err)
	}
	return nil
}

func (w *Writer) Close() {
	if w.close != nil {
		w.close()
	}
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

// Line renders state in line protocol.
func Line(state cover.State, room string, at time.Time) string {
	var b strings.Builder
	b.WriteString(measurement)
	fmt.Fprintf(&b, ",deviceId=%s", tagEscaper.Replace(state.DeviceId))
	if room != "" {
		fmt.Fprintf(&b, ",room=%s", tagEscaper.Replace(room))
	}
	fmt.Fprintf(&b, ",deviceClass=%s", state.DeviceClass)
	fmt.Fprintf(&b, " position=%di", state.Position)
	if state.TiltPosition != nil {
		fmt.Fprintf(&b, ",tilt=%di", *state.TiltPosition)
	}
	fmt.Fprintf(&b, ",state=%q", state.State)
	fmt.Fprintf(&b, " %d", at.UTC().UnixNano())
	return b.String()
}
