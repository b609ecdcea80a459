package gtfs

// Feed holds the parsed GTFS tables the schedule service needs.
// Stop times are streamed during import and never held here.
type Feed struct {
	Routes        []Route
	Trips         []Trip
	Calendar      []CalendarEntry
	CalendarDates []CalendarDate
	RoutePatterns []RoutePattern
	FeedInfo      []FeedInfo
	LastModified  string // From HTTP response header
	ETag          string // From HTTP response header
	Source        string // path@mtime for local sources, sha256:<digest> for downloads
}

type Route struct {
	RouteID        string `csv:"route_id"`
	AgencyID       string `csv:"agency_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
	RouteType      string `csv:"route_type"`
	RouteSortOrder string `csv:"route_sort_order"`
}

type Trip struct {
	TripID         string `csv:"trip_id"`
	RouteID        string `csv:"route_id"`
	ServiceID      string `csv:"service_id"`
	TripHeadsign   string `csv:"trip_headsign"`
	DirectionID    string `csv:"direction_id"`
	BlockID        string `csv:"block_id"`
	RoutePatternID string `csv:"route_pattern_id"`
}

type StopTime struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	PickupType    string `csv:"pickup_type"`
	DropOffType   string `csv:"drop_off_type"`
}

type CalendarEntry struct {
	ServiceID string `csv:"service_id"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type CalendarDate struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

// RoutePattern is an MBTA extension table. Each pattern names exactly one
// representative trip whose stop times stand in for the whole pattern.
type RoutePattern struct {
	RoutePatternID         string `csv:"route_pattern_id"`
	RouteID                string `csv:"route_id"`
	DirectionID            string `csv:"direction_id"`
	RoutePatternName       string `csv:"route_pattern_name"`
	RoutePatternTypicality string `csv:"route_pattern_typicality"`
	RoutePatternSortOrder  string `csv:"route_pattern_sort_order"`
	RepresentativeTripID   string `csv:"representative_trip_id"`
}

type FeedInfo struct {
	FeedPublisherName string `csv:"feed_publisher_name"`
	FeedStartDate     string `csv:"feed_start_date"`
	FeedEndDate       string `csv:"feed_end_date"`
	FeedVersion       string `csv:"feed_version"`
}
