// Package cachepath derives cache identities for data slices.
//
// The canonical filter serialization is an external contract: it is hashed
// into the cache path fingerprint and reproduced verbatim in the request
// query string, so client and server agree on what a cached slice contains.
// Any change to it silently invalidates every existing cache.
package cachepath

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Filter selects one channel and an optional symbol list within a venue feed.
// Symbols may be nil (all symbols), which serializes as JSON null.
type Filter struct {
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// Normalize returns a copy of filters in canonical order: filters sorted by
// channel name, symbols inside each filter sorted ascending. The input is not
// modified.
func Normalize(filters []Filter) []Filter {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		nf := Filter{Channel: f.Channel}
		if f.Symbols != nil {
			nf.Symbols = append([]string(nil), f.Symbols...)
			sort.Strings(nf.Symbols)
		}
		out[i] = nf
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Serialize returns the canonical compact JSON for filters. Nil or empty
// filter lists serialize as "[]".
func Serialize(filters []Filter) string {
	if len(filters) == 0 {
		return "[]"
	}
	b, err := json.Marshal(Normalize(filters))
	if err != nil {
		// Filter contains only strings; Marshal cannot fail.
		panic(fmt.Sprintf("cachepath: serialize filters: %v", err))
	}
	return string(b)
}

// FiltersHash returns the lowercase hex SHA-256 fingerprint of the canonical
// filter serialization. The empty filter set has a fixed fingerprint
// (sha256 of "[]").
func FiltersHash(filters []Filter) string {
	sum := sha256.Sum256([]byte(Serialize(filters)))
	return hex.EncodeToString(sum[:])
}

// SlicePath maps a slice coordinate to its cache file path:
//
//	<cacheDir>/feeds/<exchange>/<fingerprint>/<YYYY>/<MM>/<DD>/<HH>/<mm>.json.gz
//
// minute is truncated to the minute boundary; seconds and finer are ignored.
func SlicePath(cacheDir, exchange string, minute time.Time, fingerprint string) string {
	t := minute.UTC().Truncate(time.Minute)
	return filepath.Join(
		cacheDir, "feeds", exchange, fingerprint,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02d", t.Hour()),
		fmt.Sprintf("%02d", t.Minute()),
	) + ".json.gz"
}

// escapeSafe lists the bytes left unescaped by EscapeQuery beyond the
// RFC 3986 unreserved set. Matches the set the server expects.
const escapeSafe = "~()*!.'"

// EscapeQuery percent-encodes s for use as a query parameter value, leaving
// alphanumerics, "_", ".", "-", "~" and the characters in escapeSafe intact.
func EscapeQuery(s string) string {
	const hexdigit = "0123456789ABCDEF"
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if queryUnescaped(c) {
			out = append(out, c)
			continue
		}
		out = append(out, '%', hexdigit[c>>4], hexdigit[c&0xf])
	}
	return string(out)
}

func queryUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_' || c == '.' || c == '-' || c == '~':
		return true
	}
	for i := 0; i < len(escapeSafe); i++ {
		if c == escapeSafe[i] {
			return true
		}
	}
	return false
}
