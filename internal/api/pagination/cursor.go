package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor encodes a timestamp + ULID for stable keyset ordering across
// list endpoints.
type Cursor struct {
	Timestamp time.Time
	ULID      string
}

// Encode encodes the cursor as base64(ts_unix_nano:ULID).
func Encode(timestamp time.Time, ulid string) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), strings.ToUpper(strings.TrimSpace(ulid)))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// Decode decodes base64(ts_unix_nano:ULID) into a Cursor.
func Decode(cursor string) (Cursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return Cursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if strings.TrimSpace(parts[1]) == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{Timestamp: time.Unix(0, unixNano).UTC(), ULID: strings.ToUpper(strings.TrimSpace(parts[1]))}, nil
}

// Page is the common limit/after pair parsed from list query strings.
type Page struct {
	Limit int
	After string
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParsePage reads limit/after query values with defaults and bounds.
func ParsePage(limitValue, afterValue string) (Page, error) {
	page := Page{Limit: DefaultLimit, After: strings.TrimSpace(afterValue)}
	if strings.TrimSpace(limitValue) != "" {
		limit, err := strconv.Atoi(limitValue)
		if err != nil || limit <= 0 {
			return Page{}, fmt.Errorf("limit: must be a positive integer")
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		page.Limit = limit
	}
	if page.After != "" {
		if _, err := Decode(page.After); err != nil {
			return Page{}, err
		}
	}
	return page, nil
}
