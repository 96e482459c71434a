package livetiming

import (
	"fmt"
	"math"
)

// FormatLapTime formats a lap time in seconds as e.g. "1m23.45s", omitting the minutes when there are none ("45.10s").
func FormatLapTime(seconds float64) string {
	minutes := math.Floor(seconds / 60)
	remainder := math.Mod(seconds, 60)

	if minutes > 0 {
		return fmt.Sprintf("%.0fm%.2fs", minutes, remainder)
	}

	return fmt.Sprintf("%.2fs", remainder)
}

// optionalLap is a lap time which may not have been set yet. An unset lap is beaten by any lap.
type optionalLap struct {
	seconds float64
	set     bool
}

func (o optionalLap) beatenBy(seconds float64) bool {
	return !o.set || seconds < o.seconds
}

func (o *optionalLap) update(seconds float64) {
	o.seconds = seconds
	o.set = true
}
