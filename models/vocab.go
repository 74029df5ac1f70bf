package models

// Suggested vocabularies for snag editing. These are suggestions only; free
// text is always permitted.

var Rooms = []string{
	"Kitchen", "Living Room", "Dining Room", "Master Bedroom", "Bedroom 2",
	"Bedroom 3", "Bedroom 4", "Bathroom", "En-Suite", "WC", "Hallway",
	"Stairs", "Landing", "Utility Room", "Garage", "Garden", "External", "Other",
}

var Trades = []string{
	"Decorator", "Joiner", "Plumber", "Electrician", "Tiler",
	"Plasterer", "Builder", "Roofer", "Glazier", "Other",
}

var PropertyTypes = []string{
	"Detached House", "Semi-Detached House", "Terraced House",
	"Flat/Apartment", "Bungalow", "Other",
}
