package cover

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Feature is a bit set of cover capabilities. Values follow Home Assistant's
// CoverEntityFeature so they can be handed to it unchanged.
type Feature int

const (
	FeatureOpen Feature = 1 << iota
	FeatureClose
	FeatureSetPosition
	FeatureStop
	FeatureOpenTilt
	FeatureCloseTilt
	FeatureStopTilt
	FeatureSetTiltPosition
)

const (
	shutterFeatures = FeatureOpen | FeatureClose | FeatureStop | FeatureSetPosition
	blindFeatures   = shutterFeatures | FeatureOpenTilt | FeatureCloseTilt | FeatureSetTiltPosition
)

func (f Feature) Has(other Feature) bool {
	return f&other == other
}

// DeviceClass selects the framework-side icon and wording.
type DeviceClass string

const (
	DeviceClassShutter DeviceClass = "shutter"
	DeviceClassBlind   DeviceClass = "blind"
)

// Service data keys.
const (
	AttrPosition     = "position"
	AttrTiltPosition = "tilt_position"
)

var (
	// ErrMissingAttribute matches every *MissingAttributeError.
	ErrMissingAttribute = errors.New("cover: missing service attribute")
	ErrInvalidAttribute = errors.New("cover: invalid service attribute")
	ErrOutOfRange       = errors.New("cover: value out of range 0-100")
	ErrNotSupported     = errors.New("cover: feature not supported")
)

// MissingAttributeError is the lookup error of a command called without its
// required attribute.
type MissingAttributeError struct {
	Key string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("cover: missing service attribute %q", e.Key)
}

func (e *MissingAttributeError) Is(target error) bool {
	return target == ErrMissingAttribute
}

// ServiceData carries the arguments of a cover service call.
type ServiceData map[string]any

// percent reads key as a number in [0, 100]. Out-of-range values are
// rejected rather than clamped.
func (d ServiceData) percent(key string) (float64, error) {
	raw, ok := d[key]
	if !ok {
		return 0, &MissingAttributeError{Key: key}
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidAttribute, key, n)
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidAttribute, key, n)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidAttribute, key, raw)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("%w: %s=%v", ErrOutOfRange, key, v)
	}
	return v, nil
}
