// Package validate holds request-field validation shared by the HTTP
// handlers, following the teacher's convention of one small function per
// rule rather than a struct-tag validation library.
package validate

import (
	"fmt"
	"regexp"
)

// indexNameRx mirrors Algolia's index-naming rule: letters, digits,
// underscore, hyphen.
var indexNameRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// tenantIDRx is deliberately permissive (tenants are caller-assigned
// opaque strings) but still bounded and path-safe.
var tenantIDRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func IndexName(v string) error {
	if v == "" {
		return fmt.Errorf("index is required")
	}
	if !indexNameRx.MatchString(v) {
		return fmt.Errorf("index must match %s", indexNameRx.String())
	}
	return nil
}

func TenantID(v string) error {
	if v == "" {
		return fmt.Errorf("tenant is required")
	}
	if !tenantIDRx.MatchString(v) {
		return fmt.Errorf("tenant must match %s", tenantIDRx.String())
	}
	return nil
}

// TrafficSplit enforces the [0, 1] range spec §4.6 requires.
func TrafficSplit(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("trafficSplit must be between 0 and 1")
	}
	return nil
}

// HitsPerPage enforces a sane page-size ceiling, matching the secured-key
// cap's order of magnitude (spec §6.3).
func HitsPerPage(v int) error {
	if v < 0 || v > 1000 {
		return fmt.Errorf("hitsPerPage must be between 0 and 1000")
	}
	return nil
}
