// Package bridge mirrors cover entities onto MQTT using Home Assistant's MQTT
// cover conventions: retained JSON state, discovery configs and plain-text
// command topics.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/cover"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidPayload   = errors.New("mqtt: invalid command payload")
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	payloadOpen  = "OPEN"
	payloadClose = "CLOSE"
	payloadStop  = "STOP"

	commandTimeout = 10 * time.Second
)

// Entities resolves covers by unique id.
type Entities interface {
	Entity(uniqueId string) (*cover.Entity, bool)
}

type Bridge struct {
	transport       Transport
	entities        Entities
	prefix          string
	discoveryPrefix string
	qos             byte
	logger          *zap.SugaredLogger
}

func New(transport Transport, entities Entities, cfg Config, logger *zap.SugaredLogger) *Bridge {
	return &Bridge{
		transport:       transport,
		entities:        entities,
		prefix:          cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		qos:             byte(cfg.QoS),
		logger:          logger,
	}
}

func availabilityTopic(prefix string) string {
	return prefix + "/status"
}

func (b *Bridge) coverTopic(uniqueId string, suffix string) string {
	return fmt.Sprintf("%s/cover/%s/%s", b.prefix, uniqueId, suffix)
}

// Start subscribes to the command topics of all covers.
func (b *Bridge) Start() error {
	for _, suffix := range []string{"set", "position/set", "tilt/set"} {
		if err := b.transport.Subscribe(b.coverTopic("+", suffix), b.qos, b.handleCommand); err != nil {
			return err
		}
	}
	return nil
}

// Announce publishes the discovery config and current state of e.
func (b *Bridge) Announce(e *cover.Entity) error {
	if b.discoveryPrefix != "" {
		payload, err := json.Marshal(b.discovery(e))
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/cover/%s/config", b.discoveryPrefix, e.UniqueId())
		if err := b.transport.Publish(topic, b.qos, true, payload); err != nil {
			return err
		}
	}
	return b.PublishState(e)
}

// PublishState publishes the retained state snapshot of e.
func (b *Bridge) PublishState(e *cover.Entity) error {
	payload, err := json.Marshal(e.Snapshot())
	if err != nil {
		return err
	}
	return b.transport.Publish(b.coverTopic(e.UniqueId(), "state"), b.qos, true, payload)
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type discoveryConfig struct {
	Name               string          `json:"name"`
	UniqueId           string          `json:"unique_id"`
	DeviceClass        string          `json:"device_class"`
	AvailabilityTopic  string          `json:"availability_topic"`
	StateTopic         string          `json:"state_topic"`
	ValueTemplate      string          `json:"value_template"`
	CommandTopic       string          `json:"command_topic"`
	PositionTopic      string          `json:"position_topic"`
	PositionTemplate   string          `json:"position_template"`
	SetPositionTopic   string          `json:"set_position_topic"`
	TiltCommandTopic   string          `json:"tilt_command_topic,omitempty"`
	TiltStatusTopic    string          `json:"tilt_status_topic,omitempty"`
	TiltStatusTemplate string          `json:"tilt_status_template,omitempty"`
	PayloadStop        string          `json:"payload_stop"`
	Device             discoveryDevice `json:"device"`
}

func (b *Bridge) discovery(e *cover.Entity) discoveryConfig {
	state := b.coverTopic(e.UniqueId(), "state")
	cfg := discoveryConfig{
		Name:              e.Name(),
		UniqueId:          e.UniqueId(),
		DeviceClass:       string(e.DeviceClass()),
		AvailabilityTopic: availabilityTopic(b.prefix),
		StateTopic:        state,
		ValueTemplate:     "{{ value_json.state }}",
		CommandTopic:      b.coverTopic(e.UniqueId(), "set"),
		PositionTopic:     state,
		PositionTemplate:  "{{ value_json.current_position }}",
		SetPositionTopic:  b.coverTopic(e.UniqueId(), "position/set"),
		PayloadStop:       payloadStop,
		Device: discoveryDevice{
			Identifiers:  []string{e.DeviceId()},
			Name:         e.Name(),
			Manufacturer: "BOSCH",
			ViaDevice:    e.ParentId(),
		},
	}
	if e.Supports(cover.FeatureSetTiltPosition) {
		cfg.TiltCommandTopic = b.coverTopic(e.UniqueId(), "tilt/set")
		cfg.TiltStatusTopic = state
		cfg.TiltStatusTemplate = "{{ value_json.current_tilt_position }}"
	}
	return cfg
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	if err := b.dispatch(topic, payload); err != nil {
		b.logger.Errorf("MQTT command on %s failed: %v", topic, err)
	}
}

// dispatch maps a command message onto a cover service call.
func (b *Bridge) dispatch(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/cover/")
	if !ok {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	uniqueId, command, ok := strings.Cut(rest, "/")
	if !ok {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	e, ok := b.entities.Entity(uniqueId)
	if !ok {
		return fmt.Errorf("unknown cover %s", uniqueId)
	}

	service, data, err := parseCommand(command, strings.TrimSpace(string(payload)))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return e.Call(ctx, service, data)
}

func parseCommand(command string, payload string) (string, cover.ServiceData, error) {
	switch command {
	case "set":
		switch strings.ToUpper(payload) {
		case payloadOpen:
			return cover.ServiceOpen, nil, nil
		case payloadClose:
			return cover.ServiceClose, nil, nil
		case payloadStop:
			return cover.ServiceStop, nil, nil
		}
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	case "position/set", "tilt/set":
		v, err := strconv.Atoi(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
		}
		if command == "tilt/set" {
			return cover.ServiceSetTiltPosition, cover.ServiceData{cover.AttrTiltPosition: v}, nil
		}
		return cover.ServiceSetPosition, cover.ServiceData{cover.AttrPosition: v}, nil
	}
	return "", nil, fmt.Errorf("unknown command %s", command)
}
