package helpers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// TimeRange bounds run launch timestamps, in seconds since the epoch.
// Zero means unbounded.
type TimeRange struct {
	Since int64
	Until int64
}

// TimeFlags holds the flag values for time range parsing.
type TimeFlags struct {
	Since string
	Until string
}

// AddFlags adds time range flags to a FlagSet.
func (f *TimeFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Since, "since", "", "Only runs launched after this time (duration like 24h, unix seconds, RFC3339 or YYYY-MM-DD)")
	flags.StringVar(&f.Until, "until", "", "Only runs launched at or before this time (same forms as --since)")
}

// Parse returns the launch time bounds selected by the flags.
func (f *TimeFlags) Parse() (TimeRange, error) {
	return f.parse(time.Now())
}

func (f *TimeFlags) parse(now time.Time) (TimeRange, error) {
	var r TimeRange
	var err error

	if f.Since != "" {
		if r.Since, err = parseTime(f.Since, now); err != nil {
			return TimeRange{}, fmt.Errorf("invalid --since time: %w", err)
		}
	}
	if f.Until != "" {
		if r.Until, err = parseTime(f.Until, now); err != nil {
			return TimeRange{}, fmt.Errorf("invalid --until time: %w", err)
		}
	}

	if r.Until > 0 && r.Until < r.Since {
		return TimeRange{}, fmt.Errorf("--until cannot be before --since")
	}
	return r, nil
}

// parseTime accepts "now", a duration before now, unix seconds, RFC3339 or
// a plain date.
func parseTime(s string, now time.Time) (int64, error) {
	if s == "now" {
		return now.Unix(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secs, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d).Unix(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("unrecognized time %q", s)
}
