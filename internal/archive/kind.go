package archive

import (
	"fmt"
	"strings"
)

// FeedKind identifies one of the archived GTFS-realtime feeds.
type FeedKind uint8

const (
	VehiclePositions FeedKind = iota
	TripUpdates
)

// String returns the archive name of the feed, also used in cache file names.
func (k FeedKind) String() string {
	switch k {
	case VehiclePositions:
		return "concentrate_vehicle"
	case TripUpdates:
		return "concentrate"
	default:
		return fmt.Sprintf("FeedKind(%d)", k)
	}
}

// markers lists alternative groups of substrings; an object key belongs to
// the feed when it contains every substring of at least one group.
func (k FeedKind) markers() [][]string {
	switch k {
	case VehiclePositions:
		return [][]string{
			{"concentrate_VehiclePositions_enhanced"},
			{"realtime_VehiclePositions_enhanced"},
		}
	case TripUpdates:
		return [][]string{
			{"concentrate_TripUpdates_enhanced"},
			{"realtime_TripUpdates_enhanced"},
		}
	}
	return nil
}

// Matches reports whether an archive object key holds this feed.
func (k FeedKind) Matches(key string) bool {
	for _, group := range k.markers() {
		all := true
		for _, m := range group {
			if !strings.Contains(key, m) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
