package shcClient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcJsonRpc"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

func newTestClient(t *testing.T, h http.Handler) *ShcApiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := newClient(srv.Client(), srv.URL, srv.URL, zap.NewNop().Sugar())
	c.retryDelay = time.Millisecond
	return c
}

func TestGetDevices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/smarthome/devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `[{"id":"hdm:ZigBee:1","name":"Kitchen","serial":"1","rootDeviceId":"64-da-a0-00-00-01","deviceModel":"BBL","roomId":"hz_1","deviceServiceIds":["ShutterControl"]}]`)
	})
	c := newTestClient(t, mux)

	devices, err := c.GetDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hdm:ZigBee:1", devices[0].Id)
	assert.Equal(t, shcStructs.ModelShutterControl, devices[0].DeviceModel)
	assert.Equal(t, "64-da-a0-00-00-01", devices[0].RootDeviceId)
	assert.Equal(t, []string{"ShutterControl"}, devices[0].Service)
}

func TestGetRoomsUnexpectedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/smarthome/rooms", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	_, err := c.GetRooms(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestGetInformation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/smarthome/public/information", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"apiVersions":["2.1"],"shcIpAddress":"192.168.0.10","macAddress":"64-da-a0-00-00-01"}`)
	})
	c := newTestClient(t, mux)

	info, err := c.GetInformation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "64-da-a0-00-00-01", info.UniqueId())
}

func TestPutServiceState(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/smarthome/devices/hdm:ZigBee:1/services/ShutterControl/state", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	level := 0.5
	err := c.PutServiceState(context.Background(), "hdm:ZigBee:1", shcStructs.ServiceShutterControl,
		shcStructs.ShutterControlState{Type: shcStructs.TypeShutterControlState, Level: &level})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"@type": "shutterControlState", "level": 0.5}, got)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	var methods []string
	mux := http.NewServeMux()
	mux.HandleFunc("/remote/json-rpc", func(w http.ResponseWriter, r *http.Request) {
		var req shcJsonRpc.JsonRPC
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		methods = append(methods, req.Method)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","result":"poll-1"}`)
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Subscribe(context.Background()))
	assert.Equal(t, "poll-1", c.pollingId)
	require.NoError(t, c.Unsubscribe(context.Background()))
	assert.Empty(t, c.pollingId)
	assert.Equal(t, []string{shcJsonRpc.MethodSubscribe, shcJsonRpc.MethodUnsubscribe}, methods)
}

func TestLongPollWithoutSubscription(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	_, err := c.LongPoll(context.Background())
	assert.ErrorIs(t, err, ErrNotSubscribed)
}

func TestPollDeliversEventsAndResubscribes(t *testing.T) {
	var polls atomic.Int32
	var subscribes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/remote/json-rpc", func(w http.ResponseWriter, r *http.Request) {
		var req shcJsonRpc.JsonRPC
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case shcJsonRpc.MethodSubscribe:
			subscribes.Add(1)
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","result":"poll-2"}`)
		case shcJsonRpc.MethodLongPoll:
			if polls.Add(1) == 1 {
				_, _ = io.WriteString(w, `{"jsonrpc":"2.0","error":{"code":-32001,"message":"unknown poll id"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","result":[{"@type":"DeviceServiceData","id":"ShutterControl","deviceId":"hdm:ZigBee:1","state":{"@type":"shutterControlState","level":0.25}}]}`)
		}
	})
	c := newTestClient(t, mux)
	c.pollingId = "stale"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []shcStructs.DeviceEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Poll(ctx, func(event shcStructs.DeviceEvent) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "hdm:ZigBee:1", events[0].DeviceId)
	assert.Equal(t, 0.25, events[0].State["level"])
	assert.Equal(t, int32(1), subscribes.Load())
}

func TestJsonRpcErrorIsReturned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/remote/json-rpc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom"}}`)
	})
	c := newTestClient(t, mux)

	err := c.Subscribe(context.Background())
	var rpcErr shcJsonRpc.JsonRpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
}
