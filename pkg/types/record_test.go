package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/pkg/types"
)

func TestNormalizeRecord_RatingShapes(t *testing.T) {
	cases := []struct {
		name   string
		rating interface{}
		want   *int
	}{
		{"nil", nil, nil},
		{"int", 4, intPtr(4)},
		{"float rounds", 4.6, intPtr(5)},
		{"numeric string", "2", intPtr(2)},
		{"star word", "FIVE", intPtr(5)},
		{"lowercase star word", "one", intPtr(1)},
		{"empty string", "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := types.NormalizeRecord(types.RawRecord{
				Kind:   types.RecordFeedback,
				ID:     "r1",
				Rating: tc.rating,
				Body:   "  great service  ",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, rec.Score)
			assert.Equal(t, "great service", rec.Text)
		})
	}
}

func TestNormalizeRecord_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  types.RawRecord
	}{
		{"unknown kind", types.RawRecord{Kind: "tweet", ID: "x"}},
		{"missing id", types.RawRecord{Kind: types.RecordPost}},
		{"rating out of range", types.RawRecord{Kind: types.RecordFeedback, ID: "x", Rating: 9}},
		{"garbage rating", types.RawRecord{Kind: types.RecordFeedback, ID: "x", Rating: "lots"}},
		{"bad timestamp", types.RawRecord{Kind: types.RecordPost, ID: "x", PublishedAt: "yesterday"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := types.NormalizeRecord(tc.raw)
			assert.ErrorIs(t, err, types.ErrInvalidRecord)
		})
	}
}

func TestNormalizeRecord_OptionalFields(t *testing.T) {
	rec, err := types.NormalizeRecord(types.RawRecord{
		Kind:        types.RecordPost,
		ID:          "p1",
		Body:        "New menu this week",
		Response:    "   ",
		PublishedAt: "2026-03-02T18:30:00Z",
	})
	require.NoError(t, err)

	assert.False(t, rec.HasResponse(), "whitespace-only response must be treated as absent")
	require.NotNil(t, rec.PublishedAt)
	assert.Equal(t, time.Monday, rec.PublishedAt.Weekday())
	assert.Equal(t, *rec.PublishedAt, rec.CreatedAt, "CreatedAt falls back to PublishedAt")
}

func TestBehavioralProfile_IsStale(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var nilProfile *types.BehavioralProfile
	assert.True(t, nilProfile.IsStale(now, time.Hour))

	p := &types.BehavioralProfile{LastComputedAt: now.Add(-10 * time.Minute)}
	assert.False(t, p.IsStale(now, time.Hour))

	p.LastComputedAt = now.Add(-61 * time.Minute)
	assert.True(t, p.IsStale(now, time.Hour))
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "<unset>", types.MaskCredential(""))
	assert.Equal(t, "****", types.MaskCredential("short"))
	assert.Equal(t, "****wxyz", types.MaskCredential("sk-abcdefghwxyz"))

	cfg := types.ProviderConfig{Provider: "openai", Model: "gpt-4o-mini", Credential: "sk-abcdefghwxyz"}
	assert.NotContains(t, cfg.String(), "abcdefgh")
}

func intPtr(n int) *int { return &n }
