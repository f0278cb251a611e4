package events

import (
	"context"
	"errors"
	"time"
)

// DefaultChannel names the redis channel and AMQP queue version events are published to.
const DefaultChannel = "unfold.version_published"

var errEmptyChannel = errors.New("events: channel is required")

// VersionPublished announces that a curator published a day and a new exhibition version exists.
type VersionPublished struct {
	ExhibitionID string    `json:"exhibition_id"`
	VersionID    string    `json:"version_id"`
	Sequence     int64     `json:"sequence"`
	DayIndex     int       `json:"day_index"`
	PublishedAt  time.Time `json:"published_at"`
}

// Publisher delivers domain events to downstream consumers.
// Implementations own their connections; Close releases them and must be called once on shutdown.
type Publisher interface {
	PublishVersionPublished(ctx context.Context, event VersionPublished) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// NewNopPublisher returns a publisher that drops events.
func NewNopPublisher() NopPublisher {
	return NopPublisher{}
}

// PublishVersionPublished implements Publisher.
func (NopPublisher) PublishVersionPublished(context.Context, VersionPublished) error {
	return nil
}

// Close implements Publisher.
func (NopPublisher) Close() error {
	return nil
}
