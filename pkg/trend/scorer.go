package trend

import "time"

// Velocity is the number of positions climbed per hour. Observations closer
// together than a minute are scored as if a minute apart.
func Velocity(delta int, elapsed time.Duration) float64 {
	if elapsed < time.Minute {
		elapsed = time.Minute
	}
	return float64(delta) / elapsed.Hours()
}
