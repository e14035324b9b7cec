// Package workers processes listing maintenance jobs consumed from the job queue.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/location"
	logpkg "github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"go.uber.org/zap"
)

var (
	// ErrGeocodeUnavailable means the geocoder found nothing; the job is retried later
	ErrGeocodeUnavailable = errors.New("geocoder returned no coordinates")
	// ErrOwnerMismatch means the job names a listing now owned by someone else
	ErrOwnerMismatch = errors.New("listing owner does not match job")
)

// JobProcessor handles one job type
type JobProcessor func(ctx context.Context, job *queue.Job) error

type processorEntry struct {
	proc JobProcessor
	// retry failed jobs with backoff instead of dead-lettering them
	retry bool
}

// ListingMaintainer fills in data a listing could not get at save time:
// coordinates for listings saved while geocoding failed, and normalized city
// keys for listings written before keys existed.
type ListingMaintainer struct {
	repo     database.ProviderRepositoryInterface
	geocoder geocode.Geocoder
	jobs     queue.Enqueuer
	logger   *zap.Logger
	registry map[queue.JobType]processorEntry
	now      func() time.Time
}

// NewListingMaintainer creates a maintainer and registers its processors.
// jobs is used to re-enqueue failed jobs with a delay and may be nil.
func NewListingMaintainer(repo database.ProviderRepositoryInterface, geocoder geocode.Geocoder, jobs queue.Enqueuer, logger *zap.Logger) *ListingMaintainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ListingMaintainer{
		repo:     repo,
		geocoder: geocoder,
		jobs:     jobs,
		logger:   logger,
		registry: make(map[queue.JobType]processorEntry),
		now:      time.Now,
	}
	m.RegisterProcessor(queue.JobTypeGeocodeListing, m.ProcessGeocodeJob, true)
	m.RegisterProcessor(queue.JobTypeRepairCityKey, m.ProcessRepairCityKeyJob, false)
	return m
}

// RegisterProcessor registers a processor for a job type.
func (m *ListingMaintainer) RegisterProcessor(typ queue.JobType, proc JobProcessor, retry bool) {
	m.registry[typ] = processorEntry{proc: proc, retry: retry}
}

// loadListing returns the job's listing, or nil when it was deleted meanwhile.
func (m *ListingMaintainer) loadListing(ctx context.Context, job *queue.Job) (*models.Provider, error) {
	if job.ListingID == "" {
		return nil, fmt.Errorf("listing_id is required for %s job", job.Type)
	}
	p, err := m.repo.GetByID(ctx, job.ListingID)
	if errors.Is(err, database.ErrProviderNotFound) {
		m.logger.Info("listing_job_target_gone",
			zap.String("job_type", string(job.Type)),
			zap.String("listing_id", logpkg.SanitizeUID(job.ListingID)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if job.OwnerUID != "" && p.UID != job.OwnerUID {
		return nil, ErrOwnerMismatch
	}
	return p, nil
}

// ProcessGeocodeJob resolves and stores coordinates for a listing's city.
// Listings that already have coordinates are left alone.
func (m *ListingMaintainer) ProcessGeocodeJob(ctx context.Context, job *queue.Job) error {
	p, err := m.loadListing(ctx, job)
	if err != nil || p == nil {
		return err
	}
	if p.HasCoordinates() {
		return nil
	}
	if m.geocoder == nil {
		return ErrGeocodeUnavailable
	}
	point := m.geocoder.Forward(ctx, p.City)
	if point == nil {
		return ErrGeocodeUnavailable
	}
	if err := m.repo.Update(ctx, p.ID, map[string]any{
		models.FieldLat: point.Lat,
		models.FieldLng: point.Lng,
	}); err != nil {
		return fmt.Errorf("failed to store coordinates: %w", err)
	}
	m.logger.Info("listing_geocoded",
		zap.String("listing_id", logpkg.SanitizeUID(p.ID)),
		zap.String("city", logpkg.SanitizeCity(p.City)),
	)
	return nil
}

// ProcessRepairCityKeyJob recomputes city_lc for one listing, or for every
// listing when the job names none.
func (m *ListingMaintainer) ProcessRepairCityKeyJob(ctx context.Context, job *queue.Job) error {
	var targets []models.Provider
	if job.ListingID != "" {
		p, err := m.loadListing(ctx, job)
		if err != nil || p == nil {
			return err
		}
		targets = []models.Provider{*p}
	} else {
		all, err := m.repo.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list listings: %w", err)
		}
		targets = all
	}

	repaired := 0
	for _, p := range targets {
		changed, err := m.repairCityKey(ctx, p)
		if err != nil {
			return err
		}
		if changed {
			repaired++
		}
	}
	m.logger.Info("city_keys_repaired",
		zap.Int("checked", len(targets)),
		zap.Int("repaired", repaired),
	)
	return nil
}

func (m *ListingMaintainer) repairCityKey(ctx context.Context, p models.Provider) (bool, error) {
	key := location.Normalize(p.City)
	if key == p.CityLC {
		return false, nil
	}
	if err := m.repo.Update(ctx, p.ID, map[string]any{models.FieldCityLC: key}); err != nil {
		return false, fmt.Errorf("failed to update city key of %s: %w", p.ID, err)
	}
	return true, nil
}

// ProcessJob dispatches a queue message to its processor and settles it:
// ack on success, delayed retry or dead-letter on failure.
func (m *ListingMaintainer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	jobID := job.ID.String()
	if !job.ShouldProcess() {
		m.logger.Debug("listing_job_not_ready", zap.String("job_id", jobID))
		if nackErr := msg.Nack(!job.IsExpired()); nackErr != nil {
			m.logger.Warn("failed_to_nack_job_for_later_processing", zap.String("job_id", jobID), zap.Error(nackErr))
		}
		return nil
	}

	ent, ok := m.registry[job.Type]
	if !ok {
		if nackErr := msg.Nack(false); nackErr != nil {
			m.logger.Error("failed_to_nack_unknown_job_type",
				zap.String("job_id", jobID),
				zap.String("job_type", string(job.Type)),
				zap.Error(nackErr),
			)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err := ent.proc(ctx, job); err != nil {
		m.logger.Warn("listing_job_failed",
			zap.String("job_id", jobID),
			zap.String("job_type", string(job.Type)),
			zap.String("listing_id", logpkg.SanitizeUID(job.ListingID)),
			zap.Int("retry_count", job.RetryCount),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		if ent.retry && !errors.Is(err, ErrOwnerMismatch) {
			return m.handleJobError(ctx, msg, job, err)
		}
		if nackErr := msg.Nack(false); nackErr != nil {
			m.logger.Warn("failed_to_nack_job", zap.String("job_id", jobID), zap.Error(nackErr))
		}
		return fmt.Errorf("%s job failed: %w", job.Type, err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack %s job: %w", job.Type, ackErr)
	}
	return nil
}

// handleJobError re-enqueues a retryable failure with exponential backoff.
// Exhausted jobs, and jobs that cannot be re-enqueued, go to the DLQ.
func (m *ListingMaintainer) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, jobErr error) error {
	jobID := job.ID.String()
	if !job.CanRetry() || m.jobs == nil {
		m.logger.Warn("listing_job_dead_lettered",
			zap.String("job_id", jobID),
			zap.Int("retry_count", job.RetryCount),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			m.logger.Warn("failed_to_nack_job_to_dlq", zap.String("job_id", jobID), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (max retries): %w", jobErr)
	}

	delay := job.Delay()
	notBefore := m.now().Add(delay)
	retry := *job
	retry.NotBefore = &notBefore
	retry.IncrementRetry()

	if err := m.jobs.Enqueue(ctx, &retry); err != nil {
		m.logger.Error("failed_to_reenqueue_job", zap.String("job_id", jobID), zap.Error(err))
		if nackErr := msg.Nack(false); nackErr != nil {
			m.logger.Warn("failed_to_nack_job_to_dlq", zap.String("job_id", jobID), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed, re-enqueue failed: %w", err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		m.logger.Warn("failed_to_ack_retried_job", zap.String("job_id", jobID), zap.Error(ackErr))
	}
	m.logger.Info("listing_job_retry_scheduled",
		zap.String("job_id", jobID),
		zap.Int("retry_count", retry.RetryCount),
		zap.Duration("delay", delay),
	)
	return nil
}
