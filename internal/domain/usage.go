package domain

import "time"

// UsageLog is one billing record per rendered job.
type UsageLog struct {
	JobID           string
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	// InputScale is the variant width divided by the original width, 1 for full resolution.
	InputScale float64
	CreatedAt  time.Time
}

// NewUsageLog records a render of width x height pixels. Growth in size
// counts as zero saved, compute time is at least one millisecond and a
// missing scale means the original was used.
func NewUsageLog(jobID string, width, height, sourceBytes, outputBytes int, compute time.Duration, inputScale float64) UsageLog {
	if inputScale <= 0 || inputScale > 1 {
		inputScale = 1
	}
	return UsageLog{
		JobID:           jobID,
		PixelsProcessed: int64(width) * int64(height),
		BytesSaved:      max(0, int64(sourceBytes)-int64(outputBytes)),
		ComputeTimeMS:   max(1, compute.Milliseconds()),
		InputScale:      inputScale,
		CreatedAt:       time.Now().UTC(),
	}
}
