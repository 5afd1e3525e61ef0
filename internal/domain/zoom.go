package domain

import (
	"strconv"

	"github.com/paulmach/orb"
)

// ZoomRequest is a transient camera request. It is a closed set:
// ZoomToLayer, ZoomToFeature or ZoomToAddress.
type ZoomRequest interface {
	zoomRequest()
	Key() string
}

// ZoomToLayer centers on the geometry behind a named layer.
type ZoomToLayer struct {
	Name string
}

// ZoomToFeature centers on a drawn query feature from the feature table.
type ZoomToFeature struct {
	UID uint64
}

// ZoomToAddress centers on a geocoded address.
type ZoomToAddress struct {
	Query string
}

func (ZoomToLayer) zoomRequest()   {}
func (ZoomToFeature) zoomRequest() {}
func (ZoomToAddress) zoomRequest() {}

// Key implements ZoomRequest.
func (r ZoomToLayer) Key() string { return "layer:" + r.Name }

// Key implements ZoomRequest.
func (r ZoomToFeature) Key() string { return "feature:" + strconv.FormatUint(r.UID, 10) }

// Key implements ZoomRequest.
func (r ZoomToAddress) Key() string { return "address:" + r.Query }

// CameraTarget is where the camera moves to.
type CameraTarget struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}
