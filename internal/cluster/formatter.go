package cluster

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urbancamo/wota-data/internal/spot"
)

// ParseFrequency extracts the frequency in kHz from a freqmode field such as
// "7.032 SSB" or "14285 CW". Values below 1000 are taken to be MHz and
// converted. Returns 0 when no numeric frequency is present.
func ParseFrequency(freqmode string) float64 {
	parts := strings.Fields(freqmode)
	if len(parts) == 0 {
		return 0
	}

	freq, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}

	if freq < 1000 {
		return freq * 1000
	}
	return freq
}

// FallbackReference derives a displayable summit reference from a wotaid when
// the summit row itself is unavailable. Wainwrights are 1-214 (LDW-001 to
// LDW-214); outlying fells continue from 215 as LDO-001 onwards.
func FallbackReference(wotaid int) string {
	if wotaid <= 214 {
		return fmt.Sprintf("LDW-%03d", wotaid)
	}
	return fmt.Sprintf("LDO-%03d", wotaid-214)
}

func zuluTime(t time.Time) string {
	return t.UTC().Format("1504") + "Z"
}

func summitSegment(sp spot.Spot) string {
	segment := FallbackReference(sp.WotaID)
	if sp.Summit != nil {
		segment = sp.Summit.Reference + " " + sp.Summit.Name
	}
	if len(segment) > 32 {
		return segment[:32]
	}
	return segment + strings.Repeat(" ", 32-len(segment))
}

// FormatSpot renders one spot as a DX cluster protocol line:
//
//	DX de SPOTTER :     FREQ  CALL         SUMMIT-REF NAME                TIMEZ
//
// Spotter is padded to 8, frequency right-aligned in 9, spotted call padded
// to 13, the summit segment is exactly 32 characters, and the time is
// 4-digit UTC plus "Z". The line ends in CRLF.
func FormatSpot(sp spot.Spot) string {
	spotter := fmt.Sprintf("%-8s", strings.TrimSpace(sp.Spotter))
	freq := fmt.Sprintf("%9.1f", ParseFrequency(sp.FreqMode))
	call := fmt.Sprintf("%-13s", strings.TrimSpace(sp.Call))

	return "DX de " + spotter + ": " + freq + "  " + call + summitSegment(sp) + zuluTime(sp.Datetime) + "\r\n"
}

// FormatSpotList renders spots for sh/dx output, oldest first.
func FormatSpotList(spots []spot.Spot) string {
	if len(spots) == 0 {
		return "No spots available.\r\n"
	}

	var b strings.Builder
	for _, sp := range spots {
		b.WriteString(FormatSpot(sp))
	}
	return b.String()
}
