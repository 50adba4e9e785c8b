package uploads

import "github.com/camden-git/piwigosync/models"

// Event reports one upload request state change.
type Event struct {
	RequestID string             `json:"request_id"`
	State     models.UploadState `json:"state"`
	Progress  float64            `json:"progress,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Publisher receives upload state-change events. Implementations must not
// block.
type Publisher interface {
	PublishUploadEvent(Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishUploadEvent(Event) {}
