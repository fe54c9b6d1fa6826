// Package rpc carries the command contracts exchanged with rack
// controllers. Commands are JSON bodies over NATS request/reply; the
// transport is an implementation vehicle, the shapes are the contract.
package rpc

import "github.com/lyubomir-popov/maas/internal/domain"

// Region-side subjects (rack controllers invoke these).
const (
	SubjectReportBootImages = "maas.region.report-boot-images"
	SubjectGetBootSources   = "maas.region.get-boot-sources"
	SubjectGetProxies       = "maas.region.get-proxies"
)

// Rack-side subject prefixes (the region invokes these, suffixed with the
// rack UUID).
const (
	SubjectListBootImages = "maas.rack.%s.list-boot-images"
	SubjectPower          = "maas.rack.%s.power"
)

// ReportBootImagesRequest is pushed by a rack controller to publish its
// image catalog; the region records it keyed by uuid.
type ReportBootImagesRequest struct {
	UUID   string             `json:"uuid"`
	Images []BootImageSummary `json:"images"`
}

// BootImageSummary is the abbreviated catalog entry carried by
// ReportBootImages.
type BootImageSummary struct {
	Architecture    string `json:"architecture"`
	SubArchitecture string `json:"subarchitecture"`
	Release         string `json:"release"`
	Purpose         string `json:"purpose"`
}

// ReportBootImagesResponse is empty by contract.
type ReportBootImagesResponse struct{}

// GetBootSourcesRequest asks for the boot sources of the given rack.
type GetBootSourcesRequest struct {
	UUID string `json:"uuid"`
}

// GetBootSourcesResponse lists the sources and their selections.
type GetBootSourcesResponse struct {
	Sources []BootSource `json:"sources"`
}

// BootSource is one image source with its keyring and selections.
type BootSource struct {
	URL        string                `json:"url"`
	Keyring    []byte                `json:"keyring"`
	Selections []BootSourceSelection `json:"selections"`
}

// BootSourceSelection restricts which images are imported from a source.
type BootSourceSelection struct {
	Release   string   `json:"release"`
	Arches    []string `json:"arches"`
	Subarches []string `json:"subarches"`
	Labels    []string `json:"labels"`
}

// GetProxiesResponse carries the proxies racks should use; nil when
// unset.
type GetProxiesResponse struct {
	HTTP  *string `json:"http"`
	HTTPS *string `json:"https"`
}

// ListBootImagesResponse is the full per-request catalog of a rack,
// queried by the region while composing install configuration.
type ListBootImagesResponse struct {
	Images []domain.BootImage `json:"images"`
}

// Power actions the region can request from a rack.
const (
	PowerActionOn    = "on"
	PowerActionOff   = "off"
	PowerActionQuery = "query"
)

// PowerRequest asks the rack's power driver to act on a machine.
type PowerRequest struct {
	Action     string         `json:"action"`
	SystemID   string         `json:"system_id"`
	PowerType  string         `json:"power_type"`
	Parameters map[string]any `json:"parameters"`
	StopMode   string         `json:"stop_mode,omitempty"`
}

// PowerResponse reports the resulting (or queried) power state. Error
// carries the driver's message; InProgress marks a conflicting action
// already outstanding for the machine.
type PowerResponse struct {
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	InProgress bool   `json:"in_progress,omitempty"`
}
