package shcClient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcJsonRpc"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

var (
	ErrUnexpectedStatus = errors.New("shc: unexpected response status")
	ErrNotSubscribed    = errors.New("shc: no polling id, subscribe first")
)

const (
	defaultPollingTimeout = 30
	resubscribeDelay      = 5 * time.Second
)

type ShcApiClient struct {
	Host           string
	client         http.Client
	pollingId      string
	pollingTimeout int
	shcApiUrl      string
	shcPollUrl     string
	shcPublicUrl   string
	retryDelay     time.Duration
	logger         *zap.SugaredLogger
}

// NewShcApiClient builds a client authenticating with the given client
// certificate. host carries the scheme, e.g. "https://192.168.0.10".
func NewShcApiClient(host string, crt []byte, key []byte, logger *zap.SugaredLogger) (*ShcApiClient, error) {
	logger.Info("Generating X509-KeyPair")
	cert, err := tls.X509KeyPair(crt, key)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				// the controller presents a self-signed certificate
				InsecureSkipVerify: true,
			},
			TLSHandshakeTimeout: 10 * time.Second,
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
		},
	}

	c := newClient(httpClient, host+":8444", host+":8446", logger)
	c.Host = host
	c.SetPollingTimeout(defaultPollingTimeout)
	return c, nil
}

func newClient(httpClient *http.Client, base string, publicBase string, logger *zap.SugaredLogger) *ShcApiClient {
	return &ShcApiClient{
		client:         *httpClient,
		shcApiUrl:      base + "/smarthome",
		shcPollUrl:     base + "/remote/json-rpc",
		shcPublicUrl:   publicBase + "/smarthome/public/information",
		pollingTimeout: defaultPollingTimeout,
		retryDelay:     resubscribeDelay,
		logger:         logger,
	}
}

// SetPollingTimeout sets the long-poll timeout in seconds. The HTTP timeout
// is kept a few seconds above it so the controller answers first.
func (c *ShcApiClient) SetPollingTimeout(timeout int) {
	c.pollingTimeout = timeout
	c.client.Timeout = time.Duration(timeout+5) * time.Second
}

func (c *ShcApiClient) do(ctx context.Context, method string, target string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("api-version", "3.2")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, target, res.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

func (c *ShcApiClient) getResource(ctx context.Context, path string, out any) error {
	target, err := url.JoinPath(c.shcApiUrl, path)
	if err != nil {
		return err
	}
	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *ShcApiClient) GetRooms(ctx context.Context) ([]shcStructs.Room, error) {
	var rooms []shcStructs.Room
	if err := c.getResource(ctx, "rooms", &rooms); err != nil {
		return nil, err
	}
	c.logger.Info("Get List of Rooms: ", len(rooms))
	return rooms, nil
}

func (c *ShcApiClient) GetDevices(ctx context.Context) ([]shcStructs.Device, error) {
	var devices []shcStructs.Device
	if err := c.getResource(ctx, "devices", &devices); err != nil {
		return nil, err
	}
	c.logger.Info("Get List of Devices: ", len(devices))
	return devices, nil
}

func (c *ShcApiClient) GetServices(ctx context.Context) ([]shcStructs.DeviceService, error) {
	var services []shcStructs.DeviceService
	if err := c.getResource(ctx, "services", &services); err != nil {
		return nil, err
	}
	c.logger.Info("Get List of Services: ", len(services))
	return services, nil
}

func (c *ShcApiClient) GetInformation(ctx context.Context) (shcStructs.PublicInformation, error) {
	var info shcStructs.PublicInformation
	body, err := c.do(ctx, http.MethodGet, c.shcPublicUrl, nil)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("decoding public information: %w", err)
	}
	return info, nil
}

// PutServiceState writes a (partial) service state. The controller accepts
// the request and moves the device asynchronously.
func (c *ShcApiClient) PutServiceState(ctx context.Context, deviceId string, serviceId string, state any) error {
	target, err := url.JoinPath(c.shcApiUrl, "devices", deviceId, "services", serviceId, "state")
	if err != nil {
		return err
	}
	c.logger.Debugf("PUT %s/%s state %v", deviceId, serviceId, state)
	_, err = c.do(ctx, http.MethodPut, target, state)
	return err
}

func (c *ShcApiClient) JsonRpcRequest(ctx context.Context, request shcJsonRpc.JsonRPC) (shcJsonRpc.JsonRPCResult, error) {
	rpc := shcJsonRpc.JsonRPCResult{}
	body, err := c.do(ctx, http.MethodPost, c.shcPollUrl, request)
	if err != nil {
		return rpc, err
	}
	if err := json.Unmarshal(body, &rpc); err != nil {
		return rpc, fmt.Errorf("decoding json-rpc result: %w", err)
	}
	if rpc.Error != nil {
		return rpc, *rpc.Error
	}
	return rpc, nil
}

func (c *ShcApiClient) Subscribe(ctx context.Context) error {
	c.logger.Info("Subscribing to Polling")
	result, err := c.JsonRpcRequest(ctx, shcJsonRpc.Subscribe())
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	c.pollingId = result.Result
	c.logger.Info("Subscription Polling ID: ", c.pollingId)
	return nil
}

func (c *ShcApiClient) Unsubscribe(ctx context.Context) error {
	c.logger.Info("Unsubscribing from Polling")
	if c.pollingId == "" {
		c.logger.Warn("Cannot unsubscribe without Polling ID")
		return nil
	}
	result, err := c.JsonRpcRequest(ctx, shcJsonRpc.Unsubscribe(c.pollingId))
	c.pollingId = ""
	if err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	c.logger.Info("Unsubscribe Response: ", result)
	return nil
}

// LongPoll waits up to the polling timeout for events.
func (c *ShcApiClient) LongPoll(ctx context.Context) ([]shcStructs.DeviceEvent, error) {
	if c.pollingId == "" {
		return nil, ErrNotSubscribed
	}
	body, err := c.do(ctx, http.MethodPost, c.shcPollUrl, shcJsonRpc.LongPoll(c.pollingId, c.pollingTimeout))
	if err != nil {
		return nil, err
	}
	results := shcJsonRpc.PollResult{}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decoding poll result: %w", err)
	}
	if results.Error != nil {
		return nil, *results.Error
	}
	return results.Result, nil
}

// Poll long-polls until ctx is done and hands every event to f. A polling id
// the controller rejected is replaced by a fresh subscription.
func (c *ShcApiClient) Poll(ctx context.Context, f func(event shcStructs.DeviceEvent)) {
	c.logger.Info("Starting Long Polling")
	for ctx.Err() == nil {
		events, err := c.LongPoll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error(err)
			var rpcErr shcJsonRpc.JsonRpcError
			if errors.As(err, &rpcErr) || errors.Is(err, ErrNotSubscribed) {
				c.logger.Warn("Polling ID rejected, will resubscribe.")
				if !c.sleep(ctx) {
					return
				}
				if err := c.Subscribe(ctx); err != nil {
					c.logger.Error(err)
				}
				continue
			}
			// wait some time before trying a new request
			if !c.sleep(ctx) {
				return
			}
			continue
		}
		// an empty result means the poll timed out without event
		for _, event := range events {
			if f != nil {
				f(event)
			}
		}
	}
}

func (c *ShcApiClient) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
