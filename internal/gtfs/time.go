package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTime converts a GTFS "H:MM:SS" time into seconds after the start of
// the service day. Hours may exceed 23 for trips that run past midnight, so
// "25:30:00" is 91800.
func ParseTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid GTFS time %q", s)
		}
		hms[i] = n
	}
	if hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}
