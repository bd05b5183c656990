package storage

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/scrypster/bizdna/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	// DefaultHistoryLimit is the message window loaded per turn.
	DefaultHistoryLimit = 50

	// MaxListLimit caps every List* call.
	MaxListLimit = 1000
)

// NormalizeLimit applies def when limit is not positive and caps it at ceiling.
func NormalizeLimit(limit, def, ceiling int) int {
	if limit < 1 {
		limit = def
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}

// RatingText renders a raw rating for a TEXT column. Nil stays NULL so the
// record normalizes back to "no score".
func RatingText(v interface{}) interface{} {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		if r == "" {
			return nil
		}
		return r
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64)
	default:
		return fmt.Sprint(r)
	}
}

// SortKey is the ordering timestamp of a normalized record in Unix
// milliseconds. Records with no timestamp sort last.
func SortKey(rec types.InteractionRecord) int64 {
	if !rec.CreatedAt.IsZero() {
		return rec.CreatedAt.UnixMilli()
	}
	if rec.PublishedAt != nil {
		return rec.PublishedAt.UnixMilli()
	}
	return 0
}
