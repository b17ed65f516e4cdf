package models

// Object is a tracked vehicle of a customer.
type Object struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Plate    string  `json:"plate,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	LastSeen string  `json:"last_seen,omitempty"`
}
