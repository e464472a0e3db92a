package filter

import (
	"context"
)

// DuplicateTrackFilter rejects candidates whose id is already queued.
// Ids are derived from name, size and load time, so the same file handed
// over twice in one import batch is a duplicate while a re-import later is not.
type DuplicateTrackFilter struct {
	queueManager QueueManager
}

// QueueManager interface for accessing queue membership.
type QueueManager interface {
	Contains(trackID string) bool
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queueManager QueueManager) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		queueManager: queueManager,
	}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects files whose track id is already in the queue"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, c Candidate) Result {
	if f.queueManager != nil && f.queueManager.Contains(c.Track.ID) {
		return Reject("duplicate_track")
	}
	return Accept()
}
