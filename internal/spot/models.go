package spot

import "time"

// SummitInfo is the display portion of a summit row.
type SummitInfo struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// Spot is one row of the append-only spots table. IDs are assigned by the
// database and strictly increase in insertion order.
type Spot struct {
	ID       int        `json:"id"`
	Datetime time.Time  `json:"datetime"`
	Call     string     `json:"call"`
	WotaID   int        `json:"wotaid"`
	FreqMode string     `json:"freqmode"`
	Comment  string     `json:"comment"`
	Spotter  string     `json:"spotter"`
	Summit   *SummitInfo `json:"summit,omitempty"`
}

// Insert is the writable subset of a spot; the id comes back from the store.
type Insert struct {
	Datetime time.Time
	Call     string
	WotaID   int
	FreqMode string
	Comment  string
	Spotter  string
}
