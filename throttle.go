// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the rate limiting algorithm of a [ThrottleConfig].
type Policy string

// Supported policies.
const (
	PolicyFixedWindow   = Policy("fixed_window")
	PolicySlidingWindow = Policy("sliding_window")
	PolicyTokenBucket   = Policy("token_bucket")
)

// Throttle configuration defaults. They match the rate limits of the
// public API endpoint.
const (
	DefaultThrottleID       = "ipquery"
	DefaultThrottlePolicy   = PolicyFixedWindow
	DefaultThrottleLimit    = 2
	DefaultThrottleInterval = "3 seconds"
)

// ThrottleConfig configures the in-process [Limiter] built by [NewLimiter].
//
// Zero-valued fields are unset and [ValidateThrottleOptions] replaces
// them with the corresponding default.
type ThrottleConfig struct {
	// ID identifies the limiter in errors and log events.
	ID string `yaml:"id"`

	// Policy is the rate limiting algorithm.
	Policy Policy `yaml:"policy"`

	// Limit is the number of tokens available per Interval.
	Limit int `yaml:"limit"`

	// Interval is a duration such as "3 seconds", "1 minute" or "500ms".
	//
	// See [ParseInterval] for the accepted syntax.
	Interval string `yaml:"interval"`
}

// ValidateThrottleOptions returns a complete [ThrottleConfig] where each
// unset field of opts is replaced by its default. A nil opts yields the
// defaults. This function never fails: [NewLimiter] checks the values.
func ValidateThrottleOptions(opts *ThrottleConfig) ThrottleConfig {
	var out ThrottleConfig
	if opts != nil {
		out = *opts
	}
	if out.ID == "" {
		out.ID = DefaultThrottleID
	}
	if out.Policy == "" {
		out.Policy = DefaultThrottlePolicy
	}
	if out.Limit == 0 {
		out.Limit = DefaultThrottleLimit
	}
	if out.Interval == "" {
		out.Interval = DefaultThrottleInterval
	}
	return out
}

// ParseThrottleConfig parses a YAML document containing any subset of
// the id, policy, limit and interval keys and fills the rest with defaults.
//
// An empty document yields the defaults. Unknown keys are an error.
func ParseThrottleConfig(data []byte) (ThrottleConfig, error) {
	var opts ThrottleConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return ThrottleConfig{}, fmt.Errorf("%w: throttle config: %w", ErrInvalidConfiguration, err)
	}
	return ValidateThrottleOptions(&opts), nil
}

var intervalUnits = map[string]time.Duration{
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// ParseInterval parses a throttle interval.
//
// It accepts "<n> <unit>" (e.g., "3 seconds", "1 minute", "2 hours",
// "1 day") and any string accepted by [time.ParseDuration] (e.g., "3s").
// The interval must be positive. Errors wrap [ErrInvalidConfiguration].
func ParseInterval(s string) (time.Duration, error) {
	d, err := parseInterval(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: interval %q: %w", ErrInvalidConfiguration, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: interval %q: must be positive", ErrInvalidConfiguration, s)
	}
	return d, nil
}

func parseInterval(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return time.ParseDuration(s)
	}
	count, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, err
	}
	unit, found := intervalUnits[strings.ToLower(fields[1])]
	if !found {
		return 0, fmt.Errorf("unknown unit %q", fields[1])
	}
	if limit := int64(math.MaxInt64 / unit); count > limit || count < -limit {
		return 0, fmt.Errorf("%d %s overflows", count, fields[1])
	}
	return time.Duration(count) * unit, nil
}
