package models

import (
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
)

// Profile is the users/{uid} document created on first authentication.
type Profile struct {
	UID       string     `json:"uid"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ProfileFromDocument maps a stored profile.
func ProfileFromDocument(doc docstore.Document) Profile {
	return Profile{
		UID:       doc.ID,
		Email:     doc.String("email"),
		Phone:     doc.String("phone"),
		CreatedAt: doc.Time(FieldCreatedAt),
	}
}
