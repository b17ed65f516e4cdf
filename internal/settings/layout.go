package settings

import (
	"strings"
	"time"
)

// dateTokens maps date-fns format tokens onto Go reference layout parts.
var dateTokens = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MMMM": "January",
	"MMM":  "Jan",
	"MM":   "01",
	"M":    "1",
	"dd":   "02",
	"d":    "2",
	"EEEE": "Monday",
	"EEE":  "Mon",
	"HH":   "15",
	"H":    "15",
	"hh":   "03",
	"h":    "3",
	"mm":   "04",
	"m":    "4",
	"ss":   "05",
	"s":    "5",
	"a":    "PM",
}

// GoLayout converts a date-fns style pattern such as "dd-MM-yyyy HH:mm:ss"
// into a time.Format layout. Unknown letters are kept literally.
func GoLayout(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		run := string(runes[i:j])
		if layout, ok := dateTokens[run]; ok {
			b.WriteString(layout)
		} else {
			b.WriteString(run)
		}
		i = j
	}
	return b.String()
}

// DateTimeLayout is the Go layout for the stored date and time formats.
func (s *Store) DateTimeLayout() string {
	date := s.GetString("date_format", "dd-MM-yyyy")
	clock := s.GetString("time_format", "HH:mm:ss")
	return GoLayout(date + " " + clock)
}

// DateLayout is the Go layout for the stored date format alone.
func (s *Store) DateLayout() string {
	return GoLayout(s.GetString("date_format", "dd-MM-yyyy"))
}

func (s *Store) FormatTime(t time.Time) string {
	return t.Format(s.DateTimeLayout())
}
