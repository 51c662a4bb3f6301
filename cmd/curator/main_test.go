package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/training-evidence-curator/internal/checkpoint"
	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/pipeline"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "serve", "checkpoints", "search", "similar"}, names)

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("fresh"))
	assert.NotNil(t, run.Flags().Lookup("domain"))
}

func TestSimilarCommand_RejectsInvalidID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"similar", "not-a-uuid"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "paper id must be a UUID")
}

func TestBuildRegistry_EnabledInPriorityOrder(t *testing.T) {
	cfg := config.PaperSourcesConfig{
		ArXiv:           config.PaperSourceConfig{Enabled: true, RateCount: 10, RateInterval: time.Minute},
		OpenAlex:        config.PaperSourceConfig{Enabled: true, RateCount: 10, RateInterval: time.Second},
		DOAJ:            config.PaperSourceConfig{Enabled: false},
		SemanticScholar: config.PaperSourceConfig{Enabled: true, RateCount: 100, RateInterval: time.Minute},
		PubMed:          config.PaperSourceConfig{Enabled: true, RateCount: 3, RateInterval: time.Second},
	}

	reg := buildRegistry(cfg)

	var got []domain.SourceType
	for _, c := range reg.Enabled() {
		got = append(got, c.SourceType())
	}
	assert.Equal(t, []domain.SourceType{
		domain.SourceTypePubMed,
		domain.SourceTypeSemanticScholar,
		domain.SourceTypeOpenAlex,
		domain.SourceTypeArXiv,
	}, got)
	assert.Len(t, reg.All(), 5)
}

func TestSourceLimiter(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.PaperSourceConfig
		rate      float64
		wantBurst int
	}{
		{
			name:      "paced",
			cfg:       config.PaperSourceConfig{RateCount: 10, RateInterval: time.Minute, Burst: 1},
			rate:      10.0 / 60.0,
			wantBurst: 1,
		},
		{
			name:      "burst shortens the remaining budget",
			cfg:       config.PaperSourceConfig{RateCount: 10, RateInterval: time.Minute, Burst: 5},
			rate:      6.0 / 60.0,
			wantBurst: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := sourceLimiter(tt.cfg)
			assert.InDelta(t, tt.rate, l.Limit(), 1e-9)
			assert.Equal(t, tt.wantBurst, l.Burst())
		})
	}
}

func TestLLMClientConfig(t *testing.T) {
	cfg := config.LLMConfig{
		APIKey:     "sk-test",
		BaseURL:    "http://localhost:8080/v1",
		ChatModel:  "chat",
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}

	got := llmClientConfig(cfg, "embed-model")

	assert.Equal(t, "embed-model", got.Model)
	assert.Equal(t, "sk-test", got.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", got.BaseURL)
	assert.Equal(t, 2, got.MaxRetries)
}

func TestClosers_RunInReverse(t *testing.T) {
	var order []int
	var cl closers
	cl.add(func() { order = append(order, 1) })
	cl.add(func() { order = append(order, 2) })
	cl.add(func() { order = append(order, 3) })

	cl.close()

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestRenderReport(t *testing.T) {
	report := &pipeline.Report{
		Duration: 1500 * time.Millisecond,
		Domains: []pipeline.Summary{
			{
				Domain:        "hypertrophy",
				Stage:         domain.StageDone,
				ResumedFrom:   domain.StageEmbedding,
				Counts:        pipeline.Counts{Collected: 12, Clusters: 9, Duplicates: 3, Accepted: 5, Persisted: 5},
				FailedSources: []domain.SourceType{domain.SourceTypeDOAJ},
				Mirrored:      5,
			},
			{
				Domain: "sleep",
				Stage:  domain.StageFailed,
				Counts: pipeline.Counts{Collected: 4},
				Err:    errors.New("persisting: store unavailable"),
			},
		},
	}

	out := renderReport(report)

	assert.Contains(t, out, "hypertrophy")
	assert.Contains(t, out, "resumed after embedding")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "16")
	assert.Contains(t, out, "sleep failed: persisting: store unavailable")
	assert.Contains(t, out, "hypertrophy: source doaj failed for every query")
	assert.Contains(t, out, "hypertrophy: mirrored 5 vectors")
	assert.Contains(t, out, "finished in 1.5s")
}

func TestReportRows_Totals(t *testing.T) {
	report := &pipeline.Report{Domains: []pipeline.Summary{
		{Domain: "a", Stage: domain.StageDone, Counts: pipeline.Counts{Collected: 3, Accepted: 1}},
		{Domain: "b", Stage: domain.StageDone, Counts: pipeline.Counts{Collected: 4, Accepted: 2}, AlreadyCommitted: true},
	}}

	rows := reportRows(report)

	require.Len(t, rows, 3)
	assert.Equal(t, "done (already committed)", rows[1][1])
	total := rows[2]
	assert.Equal(t, "total", total[0])
	assert.Equal(t, "7", total[2])
	assert.Equal(t, "3", total[5])
}

func TestWriteHits(t *testing.T) {
	paper := &domain.CanonicalPaper{
		ID:     uuid.New(),
		Title:  strings.Repeat("Long title ", 10),
		Year:   2020,
		Domain: "recovery",
		DOI:    "10.1000/abc",
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeHits(&buf, []repository.ScoredPaper{{Paper: paper, Score: 0.5}}, false))
		out := buf.String()
		assert.Contains(t, out, "10.1000/abc")
		assert.Contains(t, out, "0.500")
		assert.Contains(t, out, paper.ID.String())
		assert.Contains(t, out, "…")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeHits(&buf, []repository.ScoredPaper{{Paper: paper, Score: 0.5}}, true))
		assert.Contains(t, buf.String(), `"score": 0.5`)
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeHits(&buf, nil, false))
		assert.Equal(t, "No results found.\n", buf.String())
	})
}

func TestWriteCheckpoints(t *testing.T) {
	var buf bytes.Buffer
	writeCheckpoints(&buf, []checkpoint.Entry{
		{Domain: "hypertrophy", Stage: domain.StageFiltering, Version: checkpoint.SchemaVersion, Size: 2048, CreatedAt: time.Now()},
	})

	out := buf.String()
	assert.Contains(t, out, "hypertrophy")
	assert.Contains(t, out, "filtering")
	assert.Contains(t, out, "2048")

	buf.Reset()
	writeCheckpoints(&buf, nil)
	assert.Equal(t, "No checkpoints.\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
