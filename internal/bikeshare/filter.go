package bikeshare

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const MinutesPerDay = 24 * 60

var ErrMinuteOutOfRange = errors.New("minute of day out of range")

// TimeFilter is either AnyTime or a minute of day in [0, 1439].
// The zero value is AnyTime.
type TimeFilter struct {
	minute int
	set    bool
}

func AnyTime() TimeFilter { return TimeFilter{} }

func AtMinute(m int) (TimeFilter, error) {
	if m < 0 || m >= MinutesPerDay {
		return TimeFilter{}, fmt.Errorf("%w: %d", ErrMinuteOutOfRange, m)
	}
	return TimeFilter{minute: m, set: true}, nil
}

func (f TimeFilter) IsAnyTime() bool { return !f.set }

// Minute returns the selected minute of day; ok is false for AnyTime.
func (f TimeFilter) Minute() (m int, ok bool) { return f.minute, f.set }

func (f TimeFilter) String() string {
	if !f.set {
		return "any"
	}
	return fmt.Sprintf("%02d:%02d", f.minute/60, f.minute%60)
}

// ParseTimeFilter reads a selection event payload. "", "any" and "-1"
// select AnyTime; anything else must be a decimal minute of day.
func ParseTimeFilter(s string) (TimeFilter, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "any", "-1":
		return AnyTime(), nil
	}
	m, err := strconv.Atoi(s)
	if err != nil {
		return TimeFilter{}, fmt.Errorf("invalid time selection %q: %w", s, err)
	}
	return AtMinute(m)
}
