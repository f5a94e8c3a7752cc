package domain

import "errors"

type (
	VenueID   string
	VenueName string
)

// Category is a fixed venue kind used only for occupancy aggregation.
type Category string

const (
	CategoryLounge Category = "lounge"
	CategoryStage  Category = "stage"
	CategoryArcade Category = "arcade"
	CategoryPlaza  Category = "plaza"
)

const MaxVenueNameLen = 36

var ErrVenueFull = errors.New("venue capacity exceeded")

// NormalizeCategory maps unknown categories to CategoryPlaza. The category
// only feeds headcounts, so a bad value is not worth failing a join over.
func NormalizeCategory(raw string) Category {
	switch c := Category(raw); c {
	case CategoryLounge, CategoryStage, CategoryArcade, CategoryPlaza:
		return c
	}
	return CategoryPlaza
}

type Venue struct {
	ID       VenueID
	Name     VenueName
	Category Category
	Capacity int
}

// VenueDefaults seeds lazily created venues.
type VenueDefaults struct {
	Name     VenueName
	Category Category
	Capacity int
}

func NewVenue(id VenueID, d VenueDefaults) *Venue {
	name := d.Name
	if name == "" {
		name = VenueName(id)
	}
	if len(name) > MaxVenueNameLen {
		name = name[:MaxVenueNameLen]
	}
	cat := d.Category
	if cat == "" {
		cat = CategoryPlaza
	}
	return &Venue{ID: id, Name: name, Category: cat, Capacity: d.Capacity}
}
