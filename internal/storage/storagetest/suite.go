// Package storagetest holds the behavioural test suite every storage.Store
// backend must pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// Factory returns a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) storage.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ProfileRoundTrip", func(t *testing.T) { testProfileRoundTrip(t, newStore(t)) })
	t.Run("ProfileNotFound", func(t *testing.T) { testProfileNotFound(t, newStore(t)) })
	t.Run("MemoryRanking", func(t *testing.T) { testMemoryRanking(t, newStore(t)) })
	t.Run("MemoryValidation", func(t *testing.T) { testMemoryValidation(t, newStore(t)) })
	t.Run("MessageOrdering", func(t *testing.T) { testMessageOrdering(t, newStore(t)) })
	t.Run("MessageWindow", func(t *testing.T) { testMessageWindow(t, newStore(t)) })
	t.Run("AppendToMissingConversation", func(t *testing.T) { testAppendMissing(t, newStore(t)) })
	t.Run("RecordsNewestFirst", func(t *testing.T) { testRecordsNewestFirst(t, newStore(t)) })
	t.Run("RecordsScopeFilter", func(t *testing.T) { testRecordsScope(t, newStore(t)) })
	t.Run("RecordsRejectInvalid", func(t *testing.T) { testRecordsRejectInvalid(t, newStore(t)) })
	t.Run("Identity", func(t *testing.T) { testIdentity(t, newStore(t)) })
	t.Run("ActiveOperators", func(t *testing.T) { testActiveOperators(t, newStore(t)) })
	t.Run("DeleteOperatorData", func(t *testing.T) { testDeleteOperatorData(t, newStore(t)) })
}

func testProfileRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	p := types.EmptyProfile("op-1", "north")
	p.Name = "Cafe Uno"
	p.TopTopics = []types.TopicSignal{{Topic: "coffee", MentionCount: 4, Sentiment: types.SentimentPositive}}
	p.SentimentScore = 42
	p.LastComputedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertProfile(ctx, p))

	got, err := s.GetProfile(ctx, "op-1", "north")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Uno", got.Name)
	assert.Equal(t, 42, got.SentimentScore)
	assert.Equal(t, p.TopTopics, got.TopTopics)
	assert.True(t, p.LastComputedAt.Equal(got.LastComputedAt))

	p.SentimentScore = -10
	require.NoError(t, s.UpsertProfile(ctx, p))
	got, err = s.GetProfile(ctx, "op-1", "north")
	require.NoError(t, err)
	assert.Equal(t, -10, got.SentimentScore)

	_, err = s.GetProfile(ctx, "op-1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "scopes are distinct keys")
}

func testProfileNotFound(t *testing.T, s storage.Store) {
	_, err := s.GetProfile(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMemoryRanking(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notes := []struct {
		id         string
		importance int
		offset     time.Duration
	}{
		{"m-low", 10, 3 * time.Hour},
		{"m-high-old", 90, 0},
		{"m-high-new", 90, time.Hour},
		{"m-mid", 50, 2 * time.Hour},
	}
	for _, n := range notes {
		require.NoError(t, s.AppendMemory(ctx, &types.MemoryRecord{
			ID: n.id, OperatorID: "op-1", Kind: types.MemoryFact,
			Content: "note " + n.id, ImportanceScore: n.importance, CreatedAt: base.Add(n.offset),
		}))
	}
	require.NoError(t, s.AppendMemory(ctx, &types.MemoryRecord{
		ID: "other", OperatorID: "op-2", Kind: types.MemoryFact, Content: "x", ImportanceScore: 100, CreatedAt: base,
	}))

	got, err := s.ListMemories(ctx, "op-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m-high-new", got[0].ID)
	assert.Equal(t, "m-high-old", got[1].ID)
	assert.Equal(t, "m-mid", got[2].ID)
}

func testMemoryValidation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	err := s.AppendMemory(ctx, &types.MemoryRecord{ID: "m", OperatorID: "op", Content: "c", ImportanceScore: 101})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	err = s.AppendMemory(ctx, &types.MemoryRecord{ID: "m", OperatorID: "op", Content: ""})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.ErrorIs(t, s.AppendMemory(ctx, nil), storage.ErrInvalidInput)
}

func newConversation(t *testing.T, s storage.Store, id, operatorID, scope string) {
	t.Helper()
	require.NoError(t, s.CreateConversation(context.Background(), &types.Conversation{
		ID: id, OperatorID: operatorID, Scope: scope, Title: "chat",
	}))
}

func testMessageOrdering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	newConversation(t, s, "c-1", "op-1", "")

	for i := 0; i < 3; i++ {
		user := &types.Message{ID: fmt.Sprintf("u-%d", i), Role: types.RoleUser, Content: "hi"}
		asst := &types.Message{
			ID: fmt.Sprintf("a-%d", i), Role: types.RoleAssistant, Content: "hello",
			ModelUsed: "gpt-4o-mini", TokensUsed: 12, Confidence: 80,
			SuggestedActions: []types.SuggestedAction{{Type: types.ActionCreatePost, Label: "Create a post"}},
		}
		require.NoError(t, s.AppendMessages(ctx, "c-1", user, asst))
		assert.Equal(t, int64(2*i+1), user.Seq)
		assert.Equal(t, int64(2*i+2), asst.Seq)
	}

	failed := &types.Message{
		ID: "u-failed", Role: types.RoleUser, Content: "again",
		Status: types.MessageFailed, Retryable: true, Error: "provider timeout",
	}
	require.NoError(t, s.AppendMessages(ctx, "c-1", failed))

	msgs, err := s.ListMessages(ctx, "c-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq, "no gaps and ascending")
	}
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, types.MessageOK, msgs[1].Status)
	require.Len(t, msgs[1].SuggestedActions, 1)
	assert.Equal(t, types.ActionCreatePost, msgs[1].SuggestedActions[0].Type)
	assert.Equal(t, 12, msgs[1].TokensUsed)

	last := msgs[6]
	assert.Equal(t, types.MessageFailed, last.Status)
	assert.True(t, last.Retryable)
	assert.Equal(t, "provider timeout", last.Error)

	conv, err := s.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))
}

func testMessageWindow(t *testing.T, s storage.Store) {
	ctx := context.Background()
	newConversation(t, s, "c-w", "op-1", "")
	for i := 1; i <= 60; i++ {
		require.NoError(t, s.AppendMessages(ctx, "c-w", &types.Message{
			ID: fmt.Sprintf("m-%02d", i), Role: types.RoleUser, Content: "msg",
		}))
	}

	msgs, err := s.ListMessages(ctx, "c-w", storage.DefaultHistoryLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	assert.Equal(t, int64(11), msgs[0].Seq, "window holds the latest messages")
	assert.Equal(t, int64(60), msgs[49].Seq)
}

func testAppendMissing(t *testing.T, s storage.Store) {
	err := s.AppendMessages(context.Background(), "nope", &types.Message{ID: "x", Role: types.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testRecordsNewestFirst(t *testing.T, s storage.Store) {
	ctx := context.Background()
	n, err := s.PutRecords(ctx, "op-1", "", []types.RawRecord{
		{Kind: types.RecordFeedback, ID: "f-old", Rating: 4, Body: "good coffee", CreatedAt: "2026-01-01T10:00:00Z"},
		{Kind: types.RecordFeedback, ID: "f-new", Rating: "FIVE", Body: "great", CreatedAt: "2026-02-01 09:30:00"},
		{Kind: types.RecordFeedback, ID: "f-mid", Rating: "3.0", Body: "ok", Response: "thanks!", CreatedAt: "2026-01-15"},
		{Kind: types.RecordPost, ID: "p-1", Body: "new menu", PublishedAt: "2026-01-20T18:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	fb, err := s.ListFeedback(ctx, "op-1", "", 0)
	require.NoError(t, err)
	require.Len(t, fb, 3)
	assert.Equal(t, "f-new", fb[0].ID)
	assert.Equal(t, "f-mid", fb[1].ID)
	assert.Equal(t, "f-old", fb[2].ID)

	require.NotNil(t, fb[0].Score)
	assert.Equal(t, 5, *fb[0].Score)
	assert.True(t, fb[1].HasResponse())
	assert.Equal(t, 4, *fb[2].Score)

	limited, err := s.ListFeedback(ctx, "op-1", "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	posts, err := s.ListPosts(ctx, "op-1", "", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].PublishedAt)
	assert.Equal(t, 18, posts[0].PublishedAt.Hour())

	questions, err := s.ListQuestions(ctx, "op-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func testRecordsScope(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.PutRecords(ctx, "op-1", "north", []types.RawRecord{
		{Kind: types.RecordQuestion, ID: "q-n", Body: "open sunday?", CreatedAt: "2026-01-01"},
	})
	require.NoError(t, err)
	_, err = s.PutRecords(ctx, "op-1", "south", []types.RawRecord{
		{Kind: types.RecordQuestion, ID: "q-s", Body: "parking?", CreatedAt: "2026-01-02"},
	})
	require.NoError(t, err)

	north, err := s.ListQuestions(ctx, "op-1", "north", 10)
	require.NoError(t, err)
	require.Len(t, north, 1)
	assert.Equal(t, "q-n", north[0].ID)

	all, err := s.ListQuestions(ctx, "op-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testRecordsRejectInvalid(t *testing.T, s storage.Store) {
	ctx := context.Background()
	n, err := s.PutRecords(ctx, "op-1", "", []types.RawRecord{
		{Kind: types.RecordFeedback, ID: "ok", Rating: 5, Body: "fine", CreatedAt: "2026-01-01"},
		{Kind: types.RecordFeedback, ID: "bad-rating", Rating: 9, Body: "?"},
		{Kind: types.RecordFeedback, ID: "", Body: "no id"},
	})
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidRecord))

	fb, err := s.ListFeedback(ctx, "op-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, fb, 1)
}

func testIdentity(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetIdentity(ctx, "op-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op-1", Name: "Cafe", Category: "restaurant"}))
	require.NoError(t, s.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op-1", Name: "Cafe Uno", Category: "restaurant"}))

	id, err := s.GetIdentity(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Uno", id.Name)
	assert.Equal(t, "restaurant", id.Category)

	assert.ErrorIs(t, s.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op-2"}), storage.ErrInvalidInput)
}

func testActiveOperators(t *testing.T, s storage.Store) {
	ctx := context.Background()
	old := time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, s.CreateConversation(ctx, &types.Conversation{
		ID: "c-old", OperatorID: "op-old", Title: "old", CreatedAt: old, UpdatedAt: old,
	}))
	newConversation(t, s, "c-a", "op-a", "north")
	newConversation(t, s, "c-b", "op-a", "north")
	newConversation(t, s, "c-c", "op-b", "")

	active, err := s.ListActiveOperators(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []storage.OperatorScope{
		{OperatorID: "op-a", Scope: "north"},
		{OperatorID: "op-b", Scope: ""},
	}, active)
}

func testDeleteOperatorData(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op-1", Name: "Cafe"}))
	_, err := s.PutRecords(ctx, "op-1", "", []types.RawRecord{
		{Kind: types.RecordFeedback, ID: "f", Rating: 5, Body: "x", CreatedAt: "2026-01-01"},
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertProfile(ctx, types.EmptyProfile("op-1", "")))
	require.NoError(t, s.AppendMemory(ctx, &types.MemoryRecord{
		ID: "m", OperatorID: "op-1", Kind: types.MemoryFact, Content: "c", ImportanceScore: 5, CreatedAt: time.Now(),
	}))
	newConversation(t, s, "c-1", "op-1", "")
	require.NoError(t, s.AppendMessages(ctx, "c-1", &types.Message{ID: "u", Role: types.RoleUser, Content: "hi"}))

	newConversation(t, s, "c-keep", "op-2", "")

	require.NoError(t, s.DeleteOperatorData(ctx, "op-1"))

	_, err = s.GetIdentity(ctx, "op-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetProfile(ctx, "op-1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetConversation(ctx, "c-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	mems, err := s.ListMemories(ctx, "op-1", 10)
	require.NoError(t, err)
	assert.Empty(t, mems)
	fb, err := s.ListFeedback(ctx, "op-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, fb)

	_, err = s.GetConversation(ctx, "c-keep")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteOperatorData(ctx, ""), storage.ErrInvalidInput)
}
