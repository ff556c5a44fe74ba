// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// MaxIPs is the maximum number of IP addresses in a single lookup.
const MaxIPs = 10000

// DefaultFormat is the response format used when the caller passes none.
const DefaultFormat = "json"

// Formats contains the response formats supported by the API.
var Formats = []string{"json", "xml", "yaml"}

// IsValidFormat returns whether format is exactly one of [Formats].
//
// The comparison is case sensitive.
func IsValidFormat(format string) bool {
	return slices.Contains(Formats, format)
}

// IsValidIP returns whether text is an IPv4 or IPv6 address literal.
//
// Hostnames, CIDR prefixes, ports, brackets and IPv6 zones are rejected.
func IsValidIP(text string) bool {
	addr, err := netip.ParseAddr(text)
	return err == nil && addr.Zone() == ""
}

// ValidateBatch validates a batch of IP addresses for a lookup.
//
// Elements containing commas are split, so []string{"1.1.1.1,8.8.8.8"}
// is equivalent to []string{"1.1.1.1", "8.8.8.8"}. The returned slice
// contains one address per element, in the original order.
//
// Errors wrap [ErrInvalidInput].
func ValidateBatch(ips []string) ([]string, error) {
	batch := strings.Split(strings.Join(ips, ","), ",")
	if len(batch) > MaxIPs {
		return nil, fmt.Errorf("%w: too many IP addresses: the limit is %d, %d provided",
			ErrInvalidInput, MaxIPs, len(batch))
	}
	for _, address := range batch {
		if !IsValidIP(address) {
			return nil, fmt.Errorf("%w: invalid IP address: %q", ErrInvalidInput, address)
		}
	}
	return batch, nil
}

// validateFormat returns an error wrapping [ErrInvalidInput] unless
// format is one of [Formats].
func validateFormat(format string) error {
	if !IsValidFormat(format) {
		return fmt.Errorf("%w: invalid format %q: must be one of %s",
			ErrInvalidInput, format, strings.Join(Formats, ", "))
	}
	return nil
}

// PrepareURI validates the lookup input and returns the request URI
// relative to the API host (e.g., "/1.1.1.1,8.8.8.8?format=json").
//
// An empty format means [DefaultFormat]. Errors wrap [ErrInvalidInput].
func PrepareURI(ips []string, format string) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	if err := validateFormat(format); err != nil {
		return "", err
	}
	batch, err := ValidateBatch(ips)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/%s?format=%s", strings.Join(batch, ","), format), nil
}
