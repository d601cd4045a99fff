package artifacts

import (
	"fmt"
	"time"
)

// Cutover is the UTC time of day before which the effective date rolls
// back one day.
type Cutover struct {
	Hour   int
	Minute int
}

// ParseCutover parses an HH:MM string.
func ParseCutover(s string) (Cutover, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Cutover{}, fmt.Errorf("cutover must be HH:MM, got '%s'", s)
	}
	return Cutover{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Cutover) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// EffectiveDate returns the partition date for wall-clock time now: the UTC
// calendar date, minus one day when now is before the cutover. The result is
// midnight UTC. Every dated artifact path is derived from this value.
func EffectiveDate(now time.Time, c Cutover) time.Time {
	u := now.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	boundary := day.Add(time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute)
	if u.Before(boundary) {
		return day.AddDate(0, 0, -1)
	}
	return day
}
