package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FindingsSummaryKey holds the cached, fully analyzed summary of a job as of
// one summary generation.
func FindingsSummaryKey(jobID uuid.UUID, generation int64) string {
	return fmt.Sprintf("summary:%s:%d", jobID, generation)
}

// SummaryGenerationKey counts the invalidations of a job's summary.
func SummaryGenerationKey(jobID uuid.UUID) string {
	return fmt.Sprintf("summary-gen:%s", jobID)
}

// RateLimitKey buckets requests from one client into fixed windows.
func RateLimitKey(client string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", client, window.Unix())
}
