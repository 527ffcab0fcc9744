package sqlite

import (
	"context"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired range records and orphaned events.
type CleanupJob struct {
	cache *Cache
	log   zerolog.Logger
}

// NewCleanupJob creates a persistent cache cleanup job.
func NewCleanupJob(cache *Cache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache: cache,
		log:   log.With().Str("job", "persistent_cache_cleanup").Logger(),
	}
}

// Run executes the cleanup.
func (j *CleanupJob) Run() error {
	n, err := j.cache.DeleteExpired(context.Background())
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache records")
		return err
	}
	if n > 0 {
		j.log.Info().Int("deleted", n).Msg("Cleaned up expired cache records")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "persistent_cache_cleanup"
}
