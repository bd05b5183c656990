package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a raw record cannot be normalized.
var ErrInvalidRecord = errors.New("invalid interaction record")

// OperatorIdentity is the primary identity record of an operator. A profile
// build cannot proceed without it.
type OperatorIdentity struct {
	OperatorID string `json:"operator_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
}

// InteractionRecord is the normalized form of a feedback entry, post or
// question. Optional fields are nil when the upstream platform did not
// provide them. Records are validated once, at the record-source boundary,
// and never re-validated deeper in the pipeline.
type InteractionRecord struct {
	Kind        RecordKind `json:"kind"`
	ID          string     `json:"id"`
	Score       *int       `json:"score,omitempty"`        // 1-5, feedback only
	Text        string     `json:"text"`                   // body of the review, post or question
	Response    *string    `json:"response,omitempty"`     // operator reply or answer
	PublishedAt *time.Time `json:"published_at,omitempty"` // publish time (posts)
	CreatedAt   time.Time  `json:"created_at"`
}

// HasResponse reports whether the operator replied to this record.
func (r InteractionRecord) HasResponse() bool {
	return r.Response != nil && *r.Response != ""
}

// RawRecord is a record as it arrives from the ingestion tables. The upstream
// platform is inconsistent about optional fields: ratings appear as numbers,
// numeric strings or star words ("FIVE"), and timestamps may be missing.
type RawRecord struct {
	Kind        RecordKind  `json:"kind"`
	ID          string      `json:"id"`
	Rating      interface{} `json:"rating,omitempty"`
	Body        string      `json:"body"`
	Response    string      `json:"response,omitempty"`
	PublishedAt string      `json:"published_at,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
}

var starWords = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// NormalizeRecord validates a raw record and converts it to an InteractionRecord.
func NormalizeRecord(raw RawRecord) (InteractionRecord, error) {
	if !raw.Kind.IsValid() {
		return InteractionRecord{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, raw.Kind)
	}
	if strings.TrimSpace(raw.ID) == "" {
		return InteractionRecord{}, fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}

	rec := InteractionRecord{
		Kind: raw.Kind,
		ID:   raw.ID,
		Text: strings.TrimSpace(raw.Body),
	}

	score, err := parseRating(raw.Rating)
	if err != nil {
		return InteractionRecord{}, fmt.Errorf("%w: record %s: %v", ErrInvalidRecord, raw.ID, err)
	}
	rec.Score = score

	if resp := strings.TrimSpace(raw.Response); resp != "" {
		rec.Response = &resp
	}

	if raw.PublishedAt != "" {
		ts, err := parseTimestamp(raw.PublishedAt)
		if err != nil {
			return InteractionRecord{}, fmt.Errorf("%w: record %s published_at: %v", ErrInvalidRecord, raw.ID, err)
		}
		rec.PublishedAt = &ts
	}

	if raw.CreatedAt != "" {
		ts, err := parseTimestamp(raw.CreatedAt)
		if err != nil {
			return InteractionRecord{}, fmt.Errorf("%w: record %s created_at: %v", ErrInvalidRecord, raw.ID, err)
		}
		rec.CreatedAt = ts
	} else if rec.PublishedAt != nil {
		rec.CreatedAt = *rec.PublishedAt
	}

	return rec, nil
}

func parseRating(v interface{}) (*int, error) {
	var n int
	switch r := v.(type) {
	case nil:
		return nil, nil
	case int:
		n = r
	case int64:
		n = int(r)
	case float64:
		n = int(math.Round(r))
	case string:
		s := strings.TrimSpace(r)
		if s == "" {
			return nil, nil
		}
		if word, ok := starWords[strings.ToUpper(s)]; ok {
			n = word
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable rating %q", s)
		}
		n = int(math.Round(f))
	default:
		return nil, fmt.Errorf("unsupported rating type %T", v)
	}
	if n < 1 || n > 5 {
		return nil, fmt.Errorf("rating %d out of range 1-5", n)
	}
	return &n, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
