// Package listings manages the provider listings a signed-in user publishes.
package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/quickfix/quickfix-api/internal/validation"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the listing does not exist
	ErrNotFound = database.ErrProviderNotFound
	// ErrOwnListing is returned when a viewer opens their own listing's public page
	ErrOwnListing = errors.New("listing belongs to the viewer")
	// ErrForbidden is returned when a user changes a listing they do not own
	ErrForbidden = errors.New("listing belongs to another user")
	// ErrConfirmationRequired is returned by Delete without explicit confirmation
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	// ErrNotSignedIn is returned when an operation needs an owner uid
	ErrNotSignedIn = errors.New("sign in to manage listings")
)

// ValidationError lists the form fields that failed validation, keyed by JSON name
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range formFieldOrder {
		if msg, ok := e.Fields[name]; ok {
			parts = append(parts, name+" "+msg)
		}
	}
	return "invalid listing: " + strings.Join(parts, "; ")
}

var formFieldOrder = []string{
	models.FieldName,
	models.FieldFirmName,
	models.FieldCategory,
	models.FieldCity,
	models.FieldPhone,
	models.FieldDescription,
	models.FieldExperienceYears,
	models.FieldPrice,
}

// Text is a form value that accepts either a JSON string or a JSON number
type Text string

// UnmarshalJSON implements json.Unmarshaler
func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}

// Form is the registration / edit form of a listing
type Form struct {
	Name            string `json:"name" validate:"notblank,max=200"`
	FirmName        string `json:"firm_name" validate:"notblank,max=200"`
	Category        string `json:"category" validate:"required,category"`
	City            string `json:"city" validate:"notblank,max=100"`
	Phone           string `json:"phone" validate:"notblank,max=30"`
	Description     string `json:"description" validate:"notblank,max=2000"`
	ExperienceYears Text   `json:"experience_years" validate:"notblank,max=20"`
	Price           Text   `json:"price" validate:"notblank,max=100"`
}

// Validate checks the form and returns a *ValidationError describing every failing field
func (f Form) Validate() error {
	if err := validation.Validate.Struct(f); err != nil {
		fields := validation.FieldErrors(err)
		if len(fields) == 0 {
			return fmt.Errorf("invalid listing: %w", err)
		}
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Payload builds the document fields written for the form. Coordinates are
// included only when point is non-nil.
func (f Form) Payload(owner string, point *geocode.Point) map[string]any {
	category := strings.TrimSpace(f.Category)
	if canonical, ok := models.CanonicalCategory(category); ok {
		category = canonical
	}
	city := validation.SanitizeText(f.City)

	data := map[string]any{
		models.FieldUID:             owner,
		models.FieldName:            validation.SanitizeText(f.Name),
		models.FieldFirmName:        validation.SanitizeText(f.FirmName),
		models.FieldCategory:        category,
		models.FieldCategoryLC:      strings.ToLower(category),
		models.FieldCity:            city,
		models.FieldCityLC:          location.Normalize(city),
		models.FieldPhone:           validation.SanitizeText(f.Phone),
		models.FieldDescription:     validation.SanitizeText(f.Description),
		models.FieldExperienceYears: ParseYears(string(f.ExperienceYears)),
		models.FieldPrice:           validation.SanitizeText(string(f.Price)),
	}
	if point != nil {
		data[models.FieldLat] = point.Lat
		data[models.FieldLng] = point.Lng
	}
	return data
}

// maxYears caps parsed experience
const maxYears = 100

// ParseYears reads the leading integer of s ("7 years" is 7). Input without
// leading digits and negative values yield 0.
func ParseYears(s string) int {
	s = strings.TrimSpace(s)
	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > maxYears {
			n = maxYears
			break
		}
	}
	if negative {
		return 0
	}
	return n
}

// Watcher opens realtime query subscriptions
type Watcher interface {
	Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error)
}

// Result describes a completed Save
type Result struct {
	ID       string `json:"id"`
	Created  bool   `json:"created"`
	Geocoded bool   `json:"geocoded"`
	Queued   bool   `json:"queued"`
}

// Service implements listing registration, editing, viewing and removal
type Service struct {
	repo     database.ProviderRepositoryInterface
	watcher  Watcher
	geocoder geocode.Geocoder
	jobs     queue.Enqueuer
	logger   *zap.Logger
}

// NewService creates a listing service. watcher and jobs may be nil.
func NewService(repo database.ProviderRepositoryInterface, watcher Watcher, geocoder geocode.Geocoder, jobs queue.Enqueuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, watcher: watcher, geocoder: geocoder, jobs: jobs, logger: log}
}

// Save creates a listing owned by owner, or updates editID when it is set.
// Geocoding is best effort; a listing saved without coordinates is queued for
// a later geocoding attempt when a queue is configured.
func (s *Service) Save(ctx context.Context, owner, editID string, form Form) (*Result, error) {
	if owner == "" {
		return nil, ErrNotSignedIn
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	var existing *models.Provider
	if editID != "" {
		p, err := s.repo.GetByID(ctx, editID)
		if err != nil {
			return nil, err
		}
		if p.UID != owner {
			return nil, ErrForbidden
		}
		existing = p
	}

	var point *geocode.Point
	if s.geocoder != nil {
		point = s.geocoder.Forward(ctx, validation.SanitizeText(form.City))
	}
	data := form.Payload(owner, point)

	res := &Result{Geocoded: point != nil}
	if existing != nil {
		delete(data, models.FieldUID)
		data[models.FieldUpdatedAt] = docstore.ServerTimestamp
		if err := s.repo.Update(ctx, existing.ID, data); err != nil {
			return nil, err
		}
		res.ID = existing.ID
	} else {
		data[models.FieldCreatedAt] = docstore.ServerTimestamp
		id, err := s.repo.Create(ctx, data)
		if err != nil {
			return nil, err
		}
		res.ID = id
		res.Created = true
	}

	if point == nil {
		res.Queued = s.enqueue(ctx, queue.JobTypeGeocodeListing, res.ID, owner)
	}

	s.logger.Info("listing_saved",
		zap.String("listing_id", res.ID),
		zap.Bool("created", res.Created),
		zap.Bool("geocoded", res.Geocoded),
	)
	return res, nil
}

func (s *Service) enqueue(ctx context.Context, jobType queue.JobType, listingID, owner string) bool {
	if s.jobs == nil {
		return false
	}
	if err := s.jobs.Enqueue(ctx, queue.NewJob(jobType, listingID, owner)); err != nil {
		s.logger.Warn("listing_job_enqueue_failed",
			zap.String("job_type", string(jobType)),
			zap.String("listing_id", listingID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Get loads a listing by id
func (s *Service) Get(ctx context.Context, id string) (*models.Provider, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// View loads a listing for its public detail page. A signed-in owner gets
// ErrOwnListing so the caller can send them to their listings instead.
func (s *Service) View(ctx context.Context, viewer, id string) (*models.Provider, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer != "" && p.UID == viewer {
		return p, ErrOwnListing
	}
	return p, nil
}

// Delete removes a listing owned by owner. confirmed must be true.
func (s *Service) Delete(ctx context.Context, owner, id string, confirmed bool) error {
	if owner == "" {
		return ErrNotSignedIn
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.UID != owner {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("listing_deleted", zap.String("listing_id", id))
	return nil
}

// ListMine returns the listings owned by owner
func (s *Service) ListMine(ctx context.Context, owner string) ([]models.Provider, error) {
	if owner == "" {
		return nil, ErrNotSignedIn
	}
	return s.repo.ListByOwner(ctx, owner)
}

// WatchMine delivers the owner's listings now and after every change until
// the subscription is removed or ctx ends.
func (s *Service) WatchMine(ctx context.Context, owner string, fn func([]models.Provider, error)) (docstore.Subscription, error) {
	if owner == "" {
		return nil, ErrNotSignedIn
	}
	if s.watcher == nil {
		return nil, errors.New("realtime updates are not available")
	}
	return s.watcher.Subscribe(ctx, database.OwnerQuery(owner), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(models.ProvidersFromDocuments(docs), nil)
	})
}
