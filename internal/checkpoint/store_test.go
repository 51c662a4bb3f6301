package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

type batch struct {
	Titles []string `json:"titles"`
	Count  int      `json:"count"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "checkpoints.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	in := batch{Titles: []string{"Deload weeks", "Tapering"}, Count: 2}
	require.NoError(t, s.Save(ctx, "deload_timing", domain.StageCollecting, in))

	var out batch
	require.NoError(t, s.Load(ctx, "deload_timing", domain.StageCollecting, &out))
	assert.Equal(t, in, out)

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "deload_timing", domain.StageCollecting, batch{Count: 5}))
		var got batch
		require.NoError(t, s.Load(ctx, "deload_timing", domain.StageCollecting, &got))
		assert.Equal(t, 5, got.Count)
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		var got batch
		err := s.Load(ctx, "deload_timing", domain.StageEmbedding, &got)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestStore_Load_Corruption(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		tamper string
		reason string
	}{
		{name: "stale version", tamper: `UPDATE checkpoints SET version = version - 1`, reason: "schema version"},
		{name: "checksum mismatch", tamper: `UPDATE checkpoints SET checksum = 'deadbeef'`, reason: "checksum mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			require.NoError(t, s.Save(ctx, "periodization", domain.StageFiltering, batch{Count: 1}))
			_, err := s.db.ExecContext(ctx, tt.tamper)
			require.NoError(t, err)

			var got batch
			err = s.Load(ctx, "periodization", domain.StageFiltering, &got)
			var corrupt *domain.CheckpointCorruption
			require.True(t, errors.As(err, &corrupt))
			assert.Equal(t, domain.StageFiltering, corrupt.Stage)
			assert.Contains(t, corrupt.Reason, tt.reason)

			err = s.Load(ctx, "periodization", domain.StageFiltering, &got)
			assert.True(t, errors.Is(err, domain.ErrNotFound), "corrupt checkpoint should be deleted")
		})
	}

	t.Run("undecodable payload", func(t *testing.T) {
		s := openTestStore(t)
		require.NoError(t, s.Save(ctx, "periodization", domain.StageFiltering, []string{"not", "a", "batch"}))

		var got batch
		err := s.Load(ctx, "periodization", domain.StageFiltering, &got)
		var corrupt *domain.CheckpointCorruption
		require.True(t, errors.As(err, &corrupt))
		assert.Contains(t, corrupt.Reason, "undecodable")
	})
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, "tapering", domain.StageCollecting, batch{}))
	require.NoError(t, s.Save(ctx, "tapering", domain.StageDeduplicating, batch{}))
	require.NoError(t, s.Save(ctx, "load_progression", domain.StageCollecting, batch{Count: 3}))

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "load_progression", all[0].Domain)
	assert.Equal(t, SchemaVersion, all[0].Version)
	assert.Positive(t, all[0].Size)

	tapering, err := s.List(ctx, "tapering")
	require.NoError(t, err)
	assert.Len(t, tapering, 2)

	n, err := s.DeleteDomain(ctx, "tapering")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "exercise_selection", domain.StageEmbedding, batch{Count: 9}))
	require.NoError(t, s.Close())

	s, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	var got batch
	require.NoError(t, s.Load(ctx, "exercise_selection", domain.StageEmbedding, &got))
	assert.Equal(t, 9, got.Count)
}
