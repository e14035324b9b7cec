package models

import (
	"strconv"
	"strings"
)

// Categories is the fixed set of listing categories, in display order.
var Categories = []string{
	"Electrician",
	"Plumber",
	"Appliances",
	"Decoration",
	"Packer & Movers",
	"Beauty",
	"Food",
	"Education",
	"Mechanical",
	"Events",
	"PG/Hostel",
	"Loans",
}

// CanonicalCategory resolves name case-insensitively to its canonical
// spelling. ok is false for unknown categories.
func CanonicalCategory(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Categories {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
