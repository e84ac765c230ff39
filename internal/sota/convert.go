package sota

import (
	"strconv"
	"strings"
	"time"

	"github.com/urbancamo/wota-data/internal/spot"
)

// commentMarker flags spots mirrored from the SOTA feed.
const commentMarker = "[SOTA>WOTA] "

const maxCommentLen = 79

const monitoredAssociation = "G"
const monitoredRegionPrefix = "LD-"

// ParseSummitNumber extracts the numeric part of a SOTA summit code,
// "LD-056" -> 56.
func ParseSummitNumber(summitCode string) (int, bool) {
	_, num, found := strings.Cut(summitCode, "-")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FilterSpots keeps Lake District spots whose summit has a WOTA mapping.
func FilterSpots(spots []FeedSpot, sotaToWota map[int]int) []FeedSpot {
	var out []FeedSpot
	for _, sp := range spots {
		if sp.AssociationCode != monitoredAssociation {
			continue
		}
		if !strings.HasPrefix(sp.SummitCode, monitoredRegionPrefix) {
			continue
		}
		n, ok := ParseSummitNumber(sp.SummitCode)
		if !ok {
			continue
		}
		if _, mapped := sotaToWota[n]; !mapped {
			continue
		}
		out = append(out, sp)
	}
	return out
}

// ParseTimestamp parses the feed timestamp ("2019-05-21T19:06:59.999") as
// UTC, ignoring any fractional seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	trimmed, _, _ := strings.Cut(raw, ".")
	return time.ParseInLocation("2006-01-02T15:04:05", trimmed, time.UTC)
}

// BuildComment truncates the feed comment to at most 79 characters and
// prepends the sync marker only when the truncated text leaves room for it.
func BuildComment(comments string) string {
	comment := comments
	if len(comment) > maxCommentLen {
		comment = comment[:maxCommentLen]
	}
	if len(comment) < maxCommentLen-len(commentMarker) {
		comment = commentMarker + comment
	}
	return comment
}

// Convert maps an accepted feed record onto a local spot row.
func Convert(sp FeedSpot, sotaToWota map[int]int) (spot.Insert, error) {
	n, _ := ParseSummitNumber(sp.SummitCode)
	at, err := ParseTimestamp(sp.Timestamp)
	if err != nil {
		return spot.Insert{}, err
	}

	return spot.Insert{
		Datetime: at,
		Call:     sp.ActivatorCallsign,
		WotaID:   sotaToWota[n],
		FreqMode: sp.Frequency + "-" + sp.Mode,
		Comment:  BuildComment(sp.Comments),
		Spotter:  sp.Callsign,
	}, nil
}
