package ipc

import (
	"time"

	"midisession/internal/manager"
	"midisession/internal/transport"
)

// StartRequest starts a new session in a stopped daemon.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest closes the running session but keeps the process alive.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// TestNotificationRequest asks the daemon to send a test alert.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the alert was delivered.
type TestNotificationResponse struct {
	Sent bool `json:"sent"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon and session status.
type StatusResponse struct {
	Running             bool      `json:"running"`
	PID                 int       `json:"pid"`
	SessionID           string    `json:"session_id"`
	ClientName          string    `json:"client_name"`
	Backend             string    `json:"backend"`
	StartedAt           time.Time `json:"started_at"`
	LockPath            string    `json:"lock_path"`
	IDStorePath         string    `json:"id_store_path"`
	Devices             int       `json:"devices"`
	Sources             int       `json:"sources"`
	Destinations        int       `json:"destinations"`
	Resources           int       `json:"resources"`
	PacketsReceived     uint64    `json:"packets_received"`
	Notifications       uint64    `json:"notifications"`
	RecentNotifications []string  `json:"recent_notifications"`
	HotplugActive       bool      `json:"hotplug_active"`
}

// EndpointsRequest filters the endpoint listing. Owned and Unowned are
// mutually exclusive; neither lists everything.
type EndpointsRequest struct {
	Owned   bool `json:"owned"`
	Unowned bool `json:"unowned"`
}

// Endpoint is the wire form of an endpoint record.
type Endpoint struct {
	Handle      uint32 `json:"handle"`
	UniqueID    int32  `json:"unique_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Direction   string `json:"direction"`
	Offline     bool   `json:"offline"`
	Owned       bool   `json:"owned"`
}

// EndpointsResponse lists endpoints, sources first.
type EndpointsResponse struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// ResourcesRequest lists managed resources.
type ResourcesRequest struct{}

// ResourcesResponse carries every managed resource of the session.
type ResourcesResponse struct {
	Resources []manager.ResourceInfo `json:"resources"`
}

// RemoveRequest removes one resource, or every resource of Kind when Tag is
// empty.
type RemoveRequest struct {
	Kind string `json:"kind"`
	Tag  string `json:"tag"`
}

// RemoveResponse reports how many resources were removed.
type RemoveResponse struct {
	Removed int `json:"removed"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

func endpointDTO(ep transport.EndpointRecord, owned bool) Endpoint {
	return Endpoint{
		Handle:      uint32(ep.Handle),
		UniqueID:    int32(ep.UniqueID),
		Name:        ep.Name,
		DisplayName: ep.DisplayName,
		Direction:   ep.Direction.String(),
		Offline:     ep.Offline,
		Owned:       owned,
	}
}
