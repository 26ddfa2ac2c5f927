// Package geohash provides the spatial encoder for trip telemetry: a
// fixed-precision geohash encoding of (lat, lng) pairs and the prefix
// operations the query planner uses to turn a bounding box into a set of
// cells to scan.
package geohash

import (
	"errors"
	"strings"

	mmcgeohash "github.com/mmcloughlin/geohash"
)

// DefaultPrecision is the geohash length used unless overridden by
// SetPrecision. At 12 characters each cell is well under a meter on a
// side, which is more resolution than any query in this system needs but
// costs nothing to carry since every caller shares the same value.
const DefaultPrecision = 12

// Precision is the geohash length every Encode/Prefixes call in the
// process uses. It defaults to DefaultPrecision and is set once at
// startup from config.Config.GeohashPrecision via SetPrecision; nothing
// in this package mutates it afterwards.
var Precision = DefaultPrecision

// SetPrecision overrides Precision for the process. p must be positive;
// callers (cmd/server's wiring) should validate p before calling this,
// matching config.Config.Validate's GEOHASH_PRECISION check.
func SetPrecision(p int) {
	if p <= 0 {
		return
	}
	Precision = p
}

// Alphabet is the standard geohash base-32 alphabet (omits 'a', 'i', 'l',
// 'o' to avoid visual ambiguity with '0', '1').
const Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// ErrInvalidCoordinate is returned when a latitude or longitude falls
// outside its valid range.
var ErrInvalidCoordinate = errors.New("geohash: coordinate out of range")

var validChars = func() map[byte]bool {
	m := make(map[byte]bool, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = true
	}
	return m
}()

// Encode returns the fixed-precision geohash for (lat, lng). It fails with
// ErrInvalidCoordinate when lat is outside [-90, 90] or lng is outside
// [-180, 180].
func Encode(lat, lng float64) (string, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", ErrInvalidCoordinate
	}
	return mmcgeohash.EncodeWithPrecision(lat, lng, Precision), nil
}

// IsValid reports whether s is a non-empty string made entirely of
// characters from the geohash alphabet (case-insensitive).
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for i := 0; i < len(lower); i++ {
		if !validChars[lower[i]] {
			return false
		}
	}
	return true
}

// CommonPrefix returns the longest shared prefix of two geohashes of equal
// length. If a and b are identical, the full string is returned. If they
// disagree at the first character, the empty string is returned — callers
// must handle that case explicitly (see internal/query's bounding-box
// fallback over all length-1 prefixes).
func CommonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// Prefixes returns every prefix of gh with length 1..P-1, the set of keys
// the index writer fans a full geohash write into. The full-length geohash
// itself is not included; callers that also need it should append gh.
func Prefixes(gh string) []string {
	if len(gh) <= 1 {
		return nil
	}
	out := make([]string, 0, len(gh)-1)
	for i := 1; i < len(gh); i++ {
		out = append(out, gh[:i])
	}
	return out
}

// FirstCharPrefixes returns the 32 length-1 prefixes of the geohash
// alphabet. The query planner falls back to scanning all of them when two
// bounding-box corners disagree at the first geohash character and
// CommonPrefix returns "" (see DESIGN.md Open Question 2).
func FirstCharPrefixes() []string {
	out := make([]string, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		out[i] = string(Alphabet[i])
	}
	return out
}
