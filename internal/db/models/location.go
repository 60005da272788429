// Package models - location.go defines the LocationSnapshot model for the
// location-intelligence dashboard. Carries db tags because the location
// repository scans through sqlx.
package models

import "time"

// LocationSnapshot pins a geocoded place to a project together with the
// amenity counts fetched at snapshot time. Amenities is raw JSONB
// (category → count) as returned by the places vendor.
type LocationSnapshot struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	Label       string    `db:"label" json:"label"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Latitude    float64   `db:"latitude" json:"latitude"`
	Longitude   float64   `db:"longitude" json:"longitude"`
	Amenities   []byte    `db:"amenities" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
