package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedInventory is returned when the status payload cannot be read
// as a device inventory.
var ErrMalformedInventory = errors.New("malformed device inventory")

// DeviceCounts is the robot and camera count reported by the backend.
type DeviceCounts struct {
	Robots  int `json:"robots"`
	Cameras int `json:"cameras"`
}

// ParseInventory counts robots and cameras in a backend status payload.
//
// robots must be a list. cameras may be a list, or an object carrying
// either cameras_status or video_cameras_ids lists. Missing keys count as zero.
func ParseInventory(body []byte) (DeviceCounts, error) {
	if !gjson.ValidBytes(body) {
		return DeviceCounts{}, fmt.Errorf("%w: invalid JSON", ErrMalformedInventory)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return DeviceCounts{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedInventory, doc.Type)
	}

	var dc DeviceCounts
	robots := doc.Get("robots")
	switch {
	case !robots.Exists() || robots.Type == gjson.Null:
	case robots.IsArray():
		dc.Robots = len(robots.Array())
	default:
		return DeviceCounts{}, fmt.Errorf("%w: robots is %s", ErrMalformedInventory, robots.Type)
	}

	cameras := doc.Get("cameras")
	switch {
	case !cameras.Exists() || cameras.Type == gjson.Null:
	case cameras.IsArray():
		dc.Cameras = len(cameras.Array())
	case cameras.IsObject():
		if st := cameras.Get("cameras_status"); st.IsArray() {
			dc.Cameras = len(st.Array())
		} else if ids := cameras.Get("video_cameras_ids"); ids.IsArray() {
			dc.Cameras = len(ids.Array())
		}
	default:
		return DeviceCounts{}, fmt.Errorf("%w: cameras is %s", ErrMalformedInventory, cameras.Type)
	}
	return dc, nil
}

// FetchInventory probes p once and parses the payload.
func FetchInventory(ctx context.Context, p Prober) (DeviceCounts, error) {
	res, err := p.Probe(ctx)
	if err != nil {
		return DeviceCounts{}, err
	}
	return ParseInventory(res.Body)
}
