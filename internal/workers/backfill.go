package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/queue"
	"go.uber.org/zap"
)

// backfillJobTTL bounds how long a scheduled backfill job stays useful
const backfillJobTTL = 24 * time.Hour

// BackfillSummary reports what a backfill scan scheduled
type BackfillSummary struct {
	Checked     int `json:"checked"`
	CityKeyJobs int `json:"city_key_jobs"`
	GeocodeJobs int `json:"geocode_jobs"`
	Failed      int `json:"failed"`
}

// Backfiller scans stored listings and schedules maintenance jobs for the ones
// with a stale city key or without coordinates.
type Backfiller struct {
	repo   database.ProviderRepositoryInterface
	jobs   queue.Enqueuer
	logger *zap.Logger
}

// NewBackfiller creates a backfiller
func NewBackfiller(repo database.ProviderRepositoryInterface, jobs queue.Enqueuer, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{repo: repo, jobs: jobs, logger: logger}
}

// Schedule enqueues one job per listing needing repair. Enqueue failures are
// counted and logged; the scan continues.
func (b *Backfiller) Schedule(ctx context.Context, geocode bool) (BackfillSummary, error) {
	var summary BackfillSummary
	listings, err := b.repo.ListAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list listings: %w", err)
	}
	summary.Checked = len(listings)

	for _, p := range listings {
		if location.Normalize(p.City) != p.CityLC {
			if b.enqueue(ctx, queue.JobTypeRepairCityKey, p.ID, p.UID) {
				summary.CityKeyJobs++
			} else {
				summary.Failed++
			}
		}
		if geocode && !p.HasCoordinates() {
			if b.enqueue(ctx, queue.JobTypeGeocodeListing, p.ID, p.UID) {
				summary.GeocodeJobs++
			} else {
				summary.Failed++
			}
		}
	}

	b.logger.Info("backfill_scheduled",
		zap.Int("checked", summary.Checked),
		zap.Int("city_key_jobs", summary.CityKeyJobs),
		zap.Int("geocode_jobs", summary.GeocodeJobs),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (b *Backfiller) enqueue(ctx context.Context, typ queue.JobType, listingID, owner string) bool {
	job := queue.NewJob(typ, listingID, owner)
	notAfter := job.CreatedAt.Add(backfillJobTTL)
	job.NotAfter = &notAfter
	if err := b.jobs.Enqueue(ctx, job); err != nil {
		b.logger.Warn("failed_to_schedule_backfill_job",
			zap.String("job_type", string(typ)),
			zap.String("listing_id", listingID),
			zap.Error(err),
		)
		return false
	}
	return true
}
