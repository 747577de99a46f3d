package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNamingExhausted means the collision probe gave up. With the current
// bound this only happens if ten thousand artifacts share one
// date/provider/label prefix.
var ErrNamingExhausted = errors.New("archive: artifact key probing exhausted")

const maxProbeAttempts = 10000

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Sanitize collapses every run of non-alphanumeric characters to a
// single underscore and trims underscores from both ends.
func Sanitize(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(s, "_"), "_")
}

// ExistsFunc reports whether an object key is already taken.
type ExistsFunc func(ctx context.Context, key string) (bool, error)

// ReserveKey computes a collision-free key for an archived receipt:
// receipts/{year}/{date}_{provider}_{label}.pdf, probing _2, _3, ...
// sequentially on collision. Deterministic for a fixed set of existing
// keys.
func ReserveKey(ctx context.Context, date, provider, label string, exists ExistsFunc) (string, error) {
	year := date
	if len(date) >= 4 {
		year = date[:4]
	}
	base := fmt.Sprintf("%s_%s_%s", date, Sanitize(provider), Sanitize(label))

	key := fmt.Sprintf("receipts/%s/%s.pdf", year, base)
	for n := 2; ; n++ {
		taken, err := exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("ReserveKey: checking %s: %w", key, err)
		}
		if !taken {
			return key, nil
		}
		if n > maxProbeAttempts {
			return "", ErrNamingExhausted
		}
		key = fmt.Sprintf("receipts/%s/%s_%d.pdf", year, base, n)
	}
}
