package models

import "fmt"

// Setting is a named display preference. Value is a JSON scalar
// (string, bool or number).
type Setting struct {
	Title string `json:"title"`
	Value any    `json:"value"`
}

func (s Setting) String() string {
	return fmt.Sprint(s.Value)
}

// ValidateValue rejects values that are not JSON scalars.
func (s Setting) ValidateValue() error {
	switch s.Value.(type) {
	case string, bool, float64, float32, int, int64, int32:
		return nil
	}
	return fmt.Errorf("setting %q: unsupported value type %T", s.Title, s.Value)
}
