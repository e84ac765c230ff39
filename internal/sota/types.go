package sota

import "time"

// FeedSpot mirrors one record of the SOTA spots API JSON response
// (https://api2.sota.org.uk/api/spots/1).
type FeedSpot struct {
	ID                int    `json:"id"`
	Timestamp         string `json:"timeStamp"`
	Comments          string `json:"comments"`
	Callsign          string `json:"callsign"`
	AssociationCode   string `json:"associationCode"`
	SummitCode        string `json:"summitCode"`
	ActivatorCallsign string `json:"activatorCallsign"`
	Frequency         string `json:"frequency"`
	Mode              string `json:"mode"`
}

// TrackedSpot associates a SOTA spot id with the WOTA composite key needed
// to delete the mirrored row when the SOTA spot disappears.
type TrackedSpot struct {
	Datetime time.Time
	Call     string
	WotaID   int
}
