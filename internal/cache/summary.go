package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SummaryGenerationTTL is how long a generation counter outlives its last
// bump. Summary TTLs must stay below it.
const SummaryGenerationTTL = 24 * time.Hour

// SummaryGeneration returns the current summary generation of jobID, 0 when
// the job has never been invalidated.
func SummaryGeneration(ctx context.Context, c Cache, jobID uuid.UUID) (int64, error) {
	raw, ok, err := c.Get(ctx, SummaryGenerationKey(jobID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("summary generation of %s: %w", jobID, err)
	}
	return gen, nil
}

// BumpSummaryGeneration advances the summary generation of each job. A
// summary written under an older generation is never read again, even when
// its writer finishes after the bump.
func BumpSummaryGeneration(ctx context.Context, c Cache, jobIDs ...uuid.UUID) error {
	for _, jobID := range jobIDs {
		if _, err := c.IncrWithExpiry(ctx, SummaryGenerationKey(jobID), SummaryGenerationTTL); err != nil {
			return fmt.Errorf("bump summary generation of %s: %w", jobID, err)
		}
	}
	return nil
}
