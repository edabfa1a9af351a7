package pipeline

import "time"

// DefaultTTL is how long a stored record stays usable without a refresh.
const DefaultTTL = 7 * 24 * time.Hour

// IsFresh reports whether a record updated at lastUpdated may be served at
// now. A record without a timestamp is stale.
func IsFresh(lastUpdated *time.Time, ttl time.Duration, now time.Time) bool {
	if lastUpdated == nil || lastUpdated.IsZero() {
		return false
	}
	return now.Sub(*lastUpdated) < ttl
}
