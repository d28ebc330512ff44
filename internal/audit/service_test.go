package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWindowRepo struct {
	rows       []Entry
	lastLimit  int
	lastOffset int
	lastFilter TimelineFilters
}

func (s *stubWindowRepo) Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error) {
	s.lastFilter, s.lastLimit, s.lastOffset = f, limit, offset
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func entries(n int) []Entry {
	out := make([]Entry, n)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Entry{
			ID:         int64(n - i),
			ActorID:    "7",
			Action:     ActionDecisionDenied,
			Entity:     "permission",
			EntityID:   fmt.Sprintf("perm-%d", i),
			OccurredAt: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubWindowRepo{rows: entries(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2, Actor: "7"})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)
	assert.Equal(t, "7", repo.lastFilter.Actor)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubWindowRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)
	assert.NotNil(t, result.Rows)

	_, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize+1, repo.lastLimit)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
