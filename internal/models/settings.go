package models

import (
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
)

// Settings document ids and field names.
const (
	CorsSettingsID      = "cors_default"
	RatelimitSettingsID = "ratelimit_default"

	FieldAllowedOrigins   = "allowed_origins"
	FieldAllowCredentials = "allow_credentials"
	FieldMaxAge           = "max_age"
	FieldRate             = "rate"
)

// CorsConfig is the browser-origin policy the API serves under.
// AllowedOrigins is comma-separated.
type CorsConfig struct {
	AllowedOrigins   string    `json:"allowed_origins"`
	AllowCredentials bool      `json:"allow_credentials"`
	MaxAge           int       `json:"max_age"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RatelimitConfig is the per-client request budget in limiter notation ("5-S", "100-M").
type RatelimitConfig struct {
	Rate      string    `json:"rate"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func CorsConfigFromDocument(doc docstore.Document) *CorsConfig {
	c := &CorsConfig{
		AllowedOrigins:   doc.String(FieldAllowedOrigins),
		AllowCredentials: doc.Data[FieldAllowCredentials] == true,
		MaxAge:           doc.Int(FieldMaxAge),
	}
	c.CreatedAt, c.UpdatedAt = stamps(doc)
	return c
}

func RatelimitConfigFromDocument(doc docstore.Document) *RatelimitConfig {
	c := &RatelimitConfig{Rate: doc.String(FieldRate)}
	c.CreatedAt, c.UpdatedAt = stamps(doc)
	return c
}

func stamps(doc docstore.Document) (created, updated time.Time) {
	if t := doc.Time(FieldCreatedAt); t != nil {
		created = *t
	}
	if t := doc.Time(FieldUpdatedAt); t != nil {
		updated = *t
	}
	return created, updated
}
