package shcDevices

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

// Api is the part of shcClient.ShcApiClient a session needs.
type Api interface {
	StateWriter
	GetInformation(ctx context.Context) (shcStructs.PublicInformation, error)
	GetRooms(ctx context.Context) ([]shcStructs.Room, error)
	GetDevices(ctx context.Context) ([]shcStructs.Device, error)
	GetServices(ctx context.Context) ([]shcStructs.DeviceService, error)
	Subscribe(ctx context.Context) error
	Unsubscribe(ctx context.Context) error
	Poll(ctx context.Context, f func(event shcStructs.DeviceEvent))
}

// Session is a loaded view of one controller.
type Session struct {
	api         Api
	information shcStructs.PublicInformation
	rooms       []shcStructs.Room
	helper      *DeviceHelper
	logger      *zap.SugaredLogger
}

func NewSession(ctx context.Context, api Api, logger *zap.SugaredLogger) (*Session, error) {
	info, err := api.GetInformation(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading controller information: %w", err)
	}
	rooms, err := api.GetRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading rooms: %w", err)
	}
	devices, err := api.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading devices: %w", err)
	}
	services, err := api.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading services: %w", err)
	}
	helper, err := NewDeviceHelper(devices, services, api)
	if err != nil {
		return nil, err
	}
	logger.Infof("Session for %s: %d shutter controls, %d micromodule shutters, %d micromodule blinds",
		info.UniqueId(), len(helper.shutterControls), len(helper.micromoduleShutterControls), len(helper.micromoduleBlinds))
	return &Session{
		api:         api,
		information: info,
		rooms:       rooms,
		helper:      helper,
		logger:      logger,
	}, nil
}

func (s *Session) Information() shcStructs.PublicInformation { return s.information }
func (s *Session) Rooms() []shcStructs.Room                  { return s.rooms }
func (s *Session) DeviceHelper() *DeviceHelper               { return s.helper }

// Listen subscribes to the controller and applies events until ctx is done.
// onChange is called with the device id after a device consumed an event.
// A failed subscription is retried by the polling loop.
func (s *Session) Listen(ctx context.Context, onChange func(deviceId string)) {
	if err := s.api.Subscribe(ctx); err != nil {
		s.logger.Errorf("Subscribing to events: %v, retrying while polling", err)
	}
	s.api.Poll(ctx, func(event shcStructs.DeviceEvent) {
		consumed, err := s.helper.ProcessEvent(event)
		if err != nil {
			s.logger.Errorf("Applying event %s of %s: %v", event.Id, event.DeviceId, err)
			return
		}
		if !consumed {
			s.logger.Debug(event)
			return
		}
		if onChange != nil {
			onChange(event.DeviceId)
		}
	})
}

func (s *Session) Close(ctx context.Context) error {
	return s.api.Unsubscribe(ctx)
}
