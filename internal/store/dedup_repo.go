// Package store provides the DedupRepo interface for inbound message deduplication.
package store

import (
	"time"
)

// DedupRepo records inbound channel message ids so webhook retries are handled once.
type DedupRepo interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, sessionID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error

	// ForgetInbound removes the record of a message whose processing failed, so a retry is
	// handled as a new delivery.
	ForgetInbound(messageID string) error

	// PruneInbound removes records received before cutoff.
	PruneInbound(cutoff time.Time) (int64, error)
}
