package recovery

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrosfera/climdex-etl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecords() []domain.ClimateIndexRecord {
	return []domain.ClimateIndexRecord{
		{City: "Santos", Model: "ACCESS-CM2", Scenario: "SSP245", Index: domain.IndexPRCPTOT, Year: 2030, Value: 1321.5},
		{City: "Santos", Model: "ACCESS-CM2", Scenario: "SSP245", Index: domain.IndexRX1day, Year: 2030, Month: time.March, Value: 88.2},
	}
}

func TestManager_SaveThenLoad(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())
	records := sampleRecords()

	require.False(t, m.Has("ACCESS-CM2", "SSP245"))
	require.NoError(t, m.Save("ACCESS-CM2", "SSP245", records))
	require.True(t, m.Has("ACCESS-CM2", "SSP245"))

	loaded, err := m.Load("ACCESS-CM2", "SSP245")
	require.NoError(t, err)
	if diff := cmp.Diff(records, loaded); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_SaveSkipsEmptyRecordSets(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testLogger())

	require.NoError(t, m.Save("ACCESS-CM2", "SSP245", nil))

	assert.False(t, m.Has("ACCESS-CM2", "SSP245"),
		"an empty checkpoint would make a failed unit look completed")
}

func TestManager_SaveLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	m := NewManager(dir, testLogger())

	require.NoError(t, m.Save("ACCESS-CM2", "SSP245", sampleRecords()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ACCESS-CM2_SSP245.cpk", entries[0].Name())
}

func TestManager_LoadMissingIsNotCorrupt(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	_, err := m.Load("ACCESS-CM2", "SSP245")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorruptCheckpoint),
		"missing and corrupt must stay distinguishable")
}

func TestManager_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, path string)
	}{
		{
			name: "garbage content",
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				require.NoError(t, os.WriteFile(path, []byte("not a checkpoint"), 0o600))
			},
		},
		{
			name: "truncated mid-write",
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o600))
			},
		},
		{
			name: "future payload version",
			corrupt: func(t *testing.T, path string) {
				t.Helper()
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data[len(payloadMagic)] = payloadVersion + 1
				require.NoError(t, os.WriteFile(path, data, 0o600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(t.TempDir(), testLogger())
			require.NoError(t, m.Save("ACCESS-CM2", "SSP245", sampleRecords()))

			tt.corrupt(t, m.path("ACCESS-CM2", "SSP245"))

			_, err := m.Load("ACCESS-CM2", "SSP245")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorruptCheckpoint)
		})
	}
}

func TestManager_Finalize(t *testing.T) {
	t.Run("removes checkpoints", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "checkpoints")
		m := NewManager(dir, testLogger())
		require.NoError(t, m.Save("ACCESS-CM2", "SSP245", sampleRecords()))

		require.NoError(t, m.Finalize(false))

		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("keep leaves files in place", func(t *testing.T) {
		m := NewManager(filepath.Join(t.TempDir(), "checkpoints"), testLogger())
		require.NoError(t, m.Save("ACCESS-CM2", "SSP245", sampleRecords()))

		require.NoError(t, m.Finalize(true))

		assert.True(t, m.Has("ACCESS-CM2", "SSP245"))
	})

	t.Run("nothing to remove", func(t *testing.T) {
		m := NewManager(filepath.Join(t.TempDir(), "never-created"), testLogger())
		assert.NoError(t, m.Finalize(false))
	})
}

func TestPayloadCodec_Roundtrip(t *testing.T) {
	records := sampleRecords()

	data, err := encodePayload(records)
	require.NoError(t, err)
	assert.Equal(t, payloadMagic, string(data[:len(payloadMagic)]))

	decoded, err := decodePayload(data)
	require.NoError(t, err)
	if diff := cmp.Diff(records, decoded); diff != "" {
		t.Fatalf("codec mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadCodec_RejectsShortInput(t *testing.T) {
	_, err := decodePayload([]byte("CL"))
	assert.Error(t, err)
}
