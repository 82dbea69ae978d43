package models

import "time"

// Listing represents one apartment offered inside a project
type Listing struct {
	ProjectName string
	ProjectLink string
	Price       float64
	SqMeters    float64
	RoomsCount  int
	Floor       int
	Plan        string
	ImageURL    string
	Link        string
	Status      string
	Tag         string // JSON array of offering tags, "[]" when none

	// Set by the store when the snapshot is persisted
	CreatedAt time.Time
}

// Project identifies the development a listing belongs to
type Project struct {
	Name string
	Link string
}
