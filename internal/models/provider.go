package models

import (
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
)

// Collection names.
const (
	ProvidersCollection = "providers"
	UsersCollection     = "users"
	AccountsCollection  = "accounts"
	SettingsCollection  = "settings"
)

// Provider field names as stored in the document store.
const (
	FieldUID             = "uid"
	FieldName            = "name"
	FieldFirmName        = "firm_name"
	FieldCategory        = "category"
	FieldCategoryLC      = "category_lc"
	FieldCity            = "city"
	FieldCityLC          = "city_lc"
	FieldPhone           = "phone"
	FieldDescription     = "description"
	FieldExperienceYears = "experience_years"
	FieldPrice           = "price"
	FieldLat             = "lat"
	FieldLng             = "lng"
	FieldCreatedAt       = "created_at"
	FieldUpdatedAt       = "updated_at"
)

// Provider is a service listing owned by one identity.
type Provider struct {
	ID              string     `json:"id"`
	UID             string     `json:"uid"`
	Name            string     `json:"name"`
	FirmName        string     `json:"firm_name"`
	Category        string     `json:"category"`
	CategoryLC      string     `json:"category_lc"`
	City            string     `json:"city"`
	CityLC          string     `json:"city_lc"`
	Phone           string     `json:"phone"`
	Description     string     `json:"description"`
	ExperienceYears int        `json:"experience_years"`
	Price           string     `json:"price"`
	Lat             *float64   `json:"lat,omitempty"`
	Lng             *float64   `json:"lng,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// HasCoordinates reports whether the listing was geocoded.
func (p *Provider) HasCoordinates() bool {
	return p.Lat != nil && p.Lng != nil
}

// ProviderFromDocument maps a stored listing. Legacy documents may lack
// derived fields; those stay empty. Numeric prices are rendered as text.
func ProviderFromDocument(doc docstore.Document) Provider {
	p := Provider{
		ID:              doc.ID,
		UID:             doc.String(FieldUID),
		Name:            doc.String(FieldName),
		FirmName:        doc.String(FieldFirmName),
		Category:        doc.String(FieldCategory),
		CategoryLC:      doc.String(FieldCategoryLC),
		City:            doc.String(FieldCity),
		CityLC:          doc.String(FieldCityLC),
		Phone:           doc.String(FieldPhone),
		Description:     doc.String(FieldDescription),
		ExperienceYears: doc.Int(FieldExperienceYears),
		Price:           doc.String(FieldPrice),
		Lat:             doc.Float(FieldLat),
		Lng:             doc.Float(FieldLng),
		CreatedAt:       doc.Time(FieldCreatedAt),
		UpdatedAt:       doc.Time(FieldUpdatedAt),
	}
	if p.Price == "" {
		if f := doc.Float(FieldPrice); f != nil {
			p.Price = formatNumber(*f)
		}
	}
	if p.ExperienceYears < 0 {
		p.ExperienceYears = 0
	}
	return p
}

// ProvidersFromDocuments maps a result set, preserving order.
func ProvidersFromDocuments(docs []docstore.Document) []Provider {
	out := make([]Provider, 0, len(docs))
	for _, d := range docs {
		out = append(out, ProviderFromDocument(d))
	}
	return out
}
