package codec

import (
	"fmt"
	"time"
)

// parseTimeAny tries each layout in turn and returns the first successful
// parse, or an error naming the input if none match.
func parseTimeAny(text string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("does not match any recognized timestamp layout")
}
