package shcStructs

// Device models handled as covers.
const (
	ModelShutterControl            = "BBL"
	ModelMicromoduleShutterControl = "MICROMODULE_SHUTTER"
	ModelMicromoduleBlinds         = "MICROMODULE_BLINDS"
)

// Service ids.
const (
	ServiceShutterControl = "ShutterControl"
	ServiceBlindsControl  = "BlindsControl"
)

// State types as sent in the "@type" field.
const (
	TypeShutterControlState = "shutterControlState"
	TypeBlindsControlState  = "blindsControlState"
	TypeDeviceServiceData   = "DeviceServiceData"
)

type Room struct {
	//Type string `json:"@type"`
	Id   string `json:"id"`
	Name string `json:"name"`
}

type Device struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Serial       string   `json:"serial"`
	RootDeviceId string   `json:"rootDeviceId"`
	Service      []string `json:"deviceServiceIds"`
	Room         string   `json:"roomId"`
	DeviceModel  string   `json:"deviceModel"`
	Manufacturer string   `json:"manufacturer"`
	Status       string   `json:"status"`
}

// DeviceService is one entry of the /services resource. State is kept raw
// because its shape depends on the service id.
type DeviceService struct {
	Type     string         `json:"@type"`
	Id       string         `json:"id"`
	DeviceId string         `json:"deviceId"`
	State    map[string]any `json:"state"`
}

type DeviceEvent struct {
	Type     string         `json:"@type"`
	Id       string         `json:"id"`
	State    map[string]any `json:"state"`
	DeviceId string         `json:"deviceId"`
}

// PublicInformation is served unauthenticated on port 8446.
type PublicInformation struct {
	ApiVersions       []string `json:"apiVersions"`
	ShcIpAddress      string   `json:"shcIpAddress"`
	MacAddress        string   `json:"macAddress"`
	ShcGeneration     string   `json:"shcGeneration"`
	SoftwareUpdateVer string   `json:"softwareUpdateState,omitempty"`
}

// UniqueId identifies the controller. The MAC address is stable across
// IP changes.
func (p PublicInformation) UniqueId() string {
	if p.MacAddress != "" {
		return p.MacAddress
	}
	return p.ShcIpAddress
}

// OperationState of a ShutterControl service. STOPPED is the idle state.
type OperationState string

const (
	OperationStateStopped     OperationState = "STOPPED"
	OperationStateOpening     OperationState = "OPENING"
	OperationStateClosing     OperationState = "CLOSING"
	OperationStateCalibrating OperationState = "CALIBRATING"
)

// OperationStates lists every known operation state.
var OperationStates = []OperationState{
	OperationStateStopped,
	OperationStateOpening,
	OperationStateClosing,
	OperationStateCalibrating,
}

type ShutterControlState struct {
	Type           string         `json:"@type"`
	Level          *float64       `json:"level,omitempty"`
	OperationState OperationState `json:"operationState,omitempty"`
	Calibrated     *bool          `json:"calibrated,omitempty"`
}

type BlindsControlState struct {
	Type         string   `json:"@type"`
	CurrentAngle *float64 `json:"currentAngle,omitempty"`
	TargetAngle  *float64 `json:"targetAngle,omitempty"`
}
