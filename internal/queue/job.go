package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeGeocodeListing resolves coordinates for a listing saved without them
	JobTypeGeocodeListing JobType = "geocode_listing"
	// JobTypeRepairCityKey recomputes city_lc for a listing whose stored key is missing or stale
	JobTypeRepairCityKey JobType = "repair_city_key"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	ListingID  string         `json:"listing_id"`
	OwnerUID   string         `json:"owner_uid,omitempty"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job for a listing
func NewJob(jobType JobType, listingID, ownerUID string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		ListingID:  listingID,
		OwnerUID:   ownerUID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// Delay returns the backoff before the next attempt of a failed job
func (j *Job) Delay() time.Duration {
	return time.Duration(1<<j.RetryCount) * 30 * time.Second
}
