package profile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/profile"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

type fakeActivity struct {
	keys  []storage.OperatorScope
	err   error
	since time.Time
}

func (f *fakeActivity) ListActiveOperators(_ context.Context, since time.Time) ([]storage.OperatorScope, error) {
	f.since = since
	return f.keys, f.err
}

type recordingBuilder struct {
	mu     sync.Mutex
	calls  []string
	forced []bool
	fail   map[string]bool
}

func (b *recordingBuilder) GetOrBuild(_ context.Context, operatorID, scope string, force bool) (*types.BehavioralProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, operatorID+"|"+scope)
	b.forced = append(b.forced, force)
	if b.fail[operatorID] {
		return nil, errors.New("boom")
	}
	return types.EmptyProfile(operatorID, scope), nil
}

func TestScheduler_RunOnceForcesRebuildForActiveOperators(t *testing.T) {
	active := &fakeActivity{keys: []storage.OperatorScope{
		{OperatorID: "op-a", Scope: "north"},
		{OperatorID: "op-b"},
		{OperatorID: "op-c"},
	}}
	builder := &recordingBuilder{fail: map[string]bool{"op-b": true}}
	m := metrics.New("bizdna", nil)

	s, err := profile.NewScheduler(builder, active, profile.SchedulerConfig{ActiveWindow: 24 * time.Hour}, nil, m)
	require.NoError(t, err)

	rebuilt := s.RunOnce(context.Background())
	assert.Equal(t, 2, rebuilt, "one failure does not stop the cycle")
	assert.ElementsMatch(t, []string{"op-a|north", "op-b|", "op-c|"}, builder.calls)
	for _, f := range builder.forced {
		assert.True(t, f, "scheduled builds always force a refresh")
	}
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), active.since, time.Minute)
}

func TestScheduler_ListFailure(t *testing.T) {
	s, err := profile.NewScheduler(&recordingBuilder{}, &fakeActivity{err: errors.New("db down")}, profile.SchedulerConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.RunOnce(context.Background()))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	_, err := profile.NewScheduler(&recordingBuilder{}, &fakeActivity{}, profile.SchedulerConfig{Spec: "every tuesday"}, nil, nil)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := profile.NewScheduler(&recordingBuilder{}, &fakeActivity{}, profile.SchedulerConfig{Spec: "@every 1h"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "double start")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")
}

func TestScheduler_IsolatedInstances(t *testing.T) {
	a, err := profile.NewScheduler(&recordingBuilder{}, &fakeActivity{}, profile.SchedulerConfig{Spec: "@every 1h"}, nil, nil)
	require.NoError(t, err)
	b, err := profile.NewScheduler(&recordingBuilder{}, &fakeActivity{}, profile.SchedulerConfig{Spec: "@every 1h"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, b.Stop(context.Background()))
}

func TestScheduler_UsesServiceSingleFlightPath(t *testing.T) {
	src := &fakeSource{identity: cafe()}
	repo := newMemRepo()
	svc := profile.NewService(src, repo, profile.Config{})
	active := &fakeActivity{keys: []storage.OperatorScope{{OperatorID: "op-1"}}}

	s, err := profile.NewScheduler(svc, active, profile.SchedulerConfig{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, int32(2), src.identityCalls.Load(), "scheduled runs bypass the freshness check")
	assert.Equal(t, 2, repo.upserts)
}
