package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slices"

	"github.com/zabeloliver/shc-cover-bridge/cover"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

type DeviceRoomMap map[string]string

// EntitySource lists the entities to sample.
type EntitySource interface {
	Entities() []*cover.Entity
}

// coverCollector samples every cover at scrape time, so the values are as
// fresh as the device handles.
type coverCollector struct {
	entities     EntitySource
	rooms        DeviceRoomMap
	position     *prometheus.Desc
	tiltPosition *prometheus.Desc
	opening      *prometheus.Desc
	closing      *prometheus.Desc
}

func NewCoverMetrics(reg prometheus.Registerer, entities EntitySource, rooms DeviceRoomMap) {
	labels := []string{"id", "room", "device_class"}
	c := &coverCollector{
		entities: entities,
		rooms:    rooms,
		position: prometheus.NewDesc(
			"shc_cover_position",
			"Current cover position in percent, 0 is closed.",
			labels, nil),
		tiltPosition: prometheus.NewDesc(
			"shc_cover_tilt_position",
			"Current slat tilt in percent.",
			labels, nil),
		opening: prometheus.NewDesc(
			"shc_cover_opening",
			"1 while the cover is opening.",
			labels, nil),
		closing: prometheus.NewDesc(
			"shc_cover_closing",
			"1 while the cover is closing.",
			labels, nil),
	}
	reg.MustRegister(c)
}

func (c *coverCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.position
	ch <- c.tiltPosition
	ch <- c.opening
	ch <- c.closing
}

func (c *coverCollector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.entities.Entities() {
		labels := []string{e.DeviceId(), c.rooms[e.DeviceId()], string(e.DeviceClass())}
		ch <- prometheus.MustNewConstMetric(c.position, prometheus.GaugeValue, float64(e.CurrentPosition()), labels...)
		if tilt, ok := e.CurrentTiltPosition(); ok {
			ch <- prometheus.MustNewConstMetric(c.tiltPosition, prometheus.GaugeValue, float64(tilt), labels...)
		}
		ch <- prometheus.MustNewConstMetric(c.opening, prometheus.GaugeValue, boolGauge(e.IsOpening()), labels...)
		ch <- prometheus.MustNewConstMetric(c.closing, prometheus.GaugeValue, boolGauge(e.IsClosing()), labels...)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func createMapping(rooms []shcStructs.Room, entities []*cover.Entity) (mapping DeviceRoomMap) {
	mapping = make(DeviceRoomMap)
	for _, el := range entities {
		idx := slices.IndexFunc(rooms, func(c shcStructs.Room) bool { return c.Id == el.RoomId() })
		if idx != -1 {
			mapping[el.DeviceId()] = rooms[idx].Name
		}
	}
	return
}
