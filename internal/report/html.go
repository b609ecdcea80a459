package report

import (
	"fmt"

	"lasttrips/internal/analysis"
)

// Page is the data rendered by Report. See report.templ.
type Page struct {
	Title   string
	Target  analysis.Target
	Rows    []analysis.Row
	Running bool
	Err     string
}

// formatGTFSTime converts "HH:MM:SS" (possibly >24h) to a clock time.
func formatGTFSTime(gtfsTime string) string {
	var h, m, s int
	if n, _ := fmt.Sscanf(gtfsTime, "%d:%d:%d", &h, &m, &s); n != 3 {
		return gtfsTime
	}

	// Times past midnight belong to the previous service day
	displayHour := h % 24
	period := "AM"
	if displayHour >= 12 {
		period = "PM"
	}
	if displayHour == 0 {
		displayHour = 12
	} else if displayHour > 12 {
		displayHour -= 12
	}

	return fmt.Sprintf("%d:%02d %s", displayHour, m, period)
}
