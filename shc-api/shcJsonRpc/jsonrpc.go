package shcJsonRpc

import (
	"fmt"

	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcStructs"
)

const Version = "2.0"

const (
	MethodSubscribe   = "RE/subscribe"
	MethodLongPoll    = "RE/longPoll"
	MethodUnsubscribe = "RE/unsubscribe"
)

// SubscriptionTopic covers every remote event of the controller.
const SubscriptionTopic = "com/bosch/sh/remote/*"

type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e JsonRpcError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

type JsonRPC struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type JsonRPCResult struct {
	Jsonrpc string        `json:"jsonrpc"`
	Result  string        `json:"result"`
	Error   *JsonRpcError `json:"error,omitempty"`
}

type PollResult struct {
	Jsonrpc string                   `json:"jsonrpc"`
	Result  []shcStructs.DeviceEvent `json:"result"`
	Error   *JsonRpcError            `json:"error,omitempty"`
}

func Subscribe() JsonRPC {
	return JsonRPC{Jsonrpc: Version, Method: MethodSubscribe, Params: []any{SubscriptionTopic, nil}}
}

func LongPoll(pollingId string, timeout int) JsonRPC {
	return JsonRPC{Jsonrpc: Version, Method: MethodLongPoll, Params: []any{pollingId, timeout}}
}

func Unsubscribe(pollingId string) JsonRPC {
	return JsonRPC{Jsonrpc: Version, Method: MethodUnsubscribe, Params: []any{pollingId}}
}
