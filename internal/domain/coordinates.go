package domain

// Coordinates is the geographic position the backend reports for a city.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}
