package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultLimit is the page size the CLI uses when none is given.
	DefaultLimit = 25
	// MaxLimit caps how many rows a CLI page can request.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from callers that page through an
// ordered set.
type Params struct {
	Limit  int
	Cursor string
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Window returns the half-open range [start, end) of an ordered set of n
// rows selected by cursor, skip and take.
//
// cursor is the index of the cursor row, or -1 when there is none. With a
// non-negative take the range starts skip rows after the cursor (or at 0)
// and spans take rows. A negative take walks backwards: it ends skip rows
// before the cursor (inclusive, or at the last row) and spans |take| rows.
// A nil take means every remaining row in the direction of travel.
func Window(n, cursor, skip int, take *int) (start, end int) {
	if n == 0 {
		return 0, 0
	}
	if take == nil || *take >= 0 {
		start = skip
		if cursor >= 0 {
			start = cursor + skip
		}
		end = n
		if take != nil {
			end = start + *take
		}
		return clamp(start, n), clamp(end, n)
	}

	last := n - 1
	if cursor >= 0 {
		last = cursor
	}
	end = last - skip + 1
	start = end + *take
	return clamp(start, n), clamp(end, n)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

// Cursor is the opaque token handed out for the next page: the unique key of
// the last row seen.
type Cursor map[string]any

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) (string, error) {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// ParseCursor decodes the cursor string back into its components. Numbers
// come back as int64 when they are integral.
func ParseCursor(value string) (Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(decoded)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("invalid cursor format: empty key")
	}
	out := make(Cursor, len(raw))
	for k, v := range raw {
		if num, ok := v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				out[k] = i
				continue
			}
			f, err := num.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid cursor value for %s: %w", k, err)
			}
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out, nil
}
