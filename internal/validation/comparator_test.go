package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSelectPrevious(t *testing.T) {
	t.Parallel()

	current := Run{ID: "cur", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0}
	tests := []struct {
		name    string
		history []Run
		wantID  string
	}{
		{
			name: "skips itself",
			history: []Run{
				current,
				{ID: "prev", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-time.Hour)},
			},
			wantID: "prev",
		},
		{
			name: "skips other lineages and failures",
			history: []Run{
				{ID: "other", Tag: "weekly", Status: RunStatusSucceeded, StartedAt: t0.Add(-time.Minute)},
				{ID: "failed", Tag: "daily", Status: RunStatusFailed, StartedAt: t0.Add(-2 * time.Minute)},
				{ID: "ok", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-3 * time.Minute)},
			},
			wantID: "ok",
		},
		{
			name: "picks most recent regardless of order",
			history: []Run{
				{ID: "older", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-48 * time.Hour)},
				{ID: "newer", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-24 * time.Hour)},
			},
			wantID: "newer",
		},
		{
			name: "ignores later runs",
			history: []Run{
				{ID: "later", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(time.Hour)},
				{ID: "same-time", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0},
			},
		},
		{name: "empty history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := SelectPrevious(tt.history, current)
			assert.Equal(t, tt.wantID != "", ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestMissingAttributes(t *testing.T) {
	t.Parallel()

	previous := map[string]string{"url": "string", "title": "string", "price": "number"}
	current := map[string]string{"url": "string", "title": "string"}
	assert.Equal(t, []string{"price"}, MissingAttributes(previous, current))
	assert.Empty(t, MissingAttributes(current, previous))
}

func TestCompareReportsMissingAttributes(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	current := Run{ID: "cur", ParentID: "crawler", Tag: "daily", StartedAt: t0}
	platform.history = []Run{
		current,
		{ID: "prev", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-time.Hour)},
	}
	platform.items["prev"] = records(map[string]any{"url": "u", "title": "t", "price": 2.0, "sku": "s"})

	c := NewComparator(platform, NewSampler(10, nil), zap.NewNop())
	target := Target{Kind: TargetCrawlerExecution, ID: "cur", ParentID: "crawler"}
	findings, err := c.Compare(context.Background(), target, current, map[string]string{"url": "string", "title": "string"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Crawler doesn't have all attributes as previous run, missing 2 attributes: price,sku",
	}, findings)
}

func TestCompareWithoutPreviousRun(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	current := Run{ID: "cur", Tag: "daily", StartedAt: t0}
	platform.history = []Run{current}

	c := NewComparator(platform, NewSampler(10, nil), nil)
	findings, err := c.Compare(context.Background(), Target{Kind: TargetActorRun, ID: "cur", ParentID: "actor"}, current, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Previous actor run with tag daily not found."}, findings)
}

func TestCompareUntaggedActorRunWithoutPrevious(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	current := Run{ID: "cur", ParentID: "act-9", StartedAt: t0}
	platform.history = []Run{
		current,
		{ID: "task-run", ParentID: "act-9", Tag: "task-1", Status: RunStatusSucceeded, StartedAt: t0.Add(-time.Hour)},
	}

	c := NewComparator(platform, NewSampler(10, nil), nil)
	findings, err := c.Compare(context.Background(), Target{Kind: TargetActorRun, ID: "cur", ParentID: "act-9"}, current, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Previous run of actor act-9 not found."}, findings)
}

func TestCompareDatasetHasNoLineage(t *testing.T) {
	t.Parallel()

	c := NewComparator(newFakePlatform(), NewSampler(10, nil), nil)
	findings, err := c.Compare(context.Background(), Target{Kind: TargetDataset, ID: "ds"}, Run{ID: "ds"}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Previous run for dataset ds not found."}, findings)
}

func TestCompareNoDifferences(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	current := Run{ID: "cur", Tag: "daily", StartedAt: t0}
	platform.history = []Run{{ID: "prev", Tag: "daily", Status: RunStatusSucceeded, StartedAt: t0.Add(-time.Hour)}}
	platform.items["prev"] = records(map[string]any{"url": "u"})

	c := NewComparator(platform, NewSampler(10, nil), nil)
	findings, err := c.Compare(context.Background(), Target{Kind: TargetCrawlerExecution, ID: "cur"}, current,
		map[string]string{"url": "string"}, 10)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
