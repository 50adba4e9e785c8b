package albumsync

// Event reports the progress of one reconciliation pass.
type Event struct {
	AlbumID  int64  `json:"album_id"`
	Page     int    `json:"page"`
	LastPage int    `json:"last_page"`
	Done     bool   `json:"done"`
	Removed  int    `json:"removed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Publisher receives reconciliation progress events. Implementations must
// not block; the hub drops events when its buffer is full.
type Publisher interface {
	PublishSyncEvent(Event)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishSyncEvent(Event) {}
