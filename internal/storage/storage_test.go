package storage

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/walkforward"
)

func sampleSnapshot() *walkforward.Snapshot {
	return &walkforward.Snapshot{
		Project:   "PROJ",
		Iteration: 2,
		Role:      walkforward.RoleTraining,
		Releases:  []int{1, 2},
		Rows: []walkforward.Row{
			{
				ReleaseIndex: 1, ReleaseName: "1.0", ClassPath: "src/Foo.java", ClassName: "Foo",
				Method: "run", StartLine: 3, EndLine: 9,
				ClassMetrics: models.ClassMetrics{LOC: 40, Revisions: 2, Authors: 1, CumulativeAuthors: 3, Churn: 12, MaxChurn: 8, AgeReleases: 0},
				Buggy:        true,
			},
			{
				ReleaseIndex: 2, ReleaseName: "1.1", ClassPath: "src/Foo.java", ClassName: "Foo",
				Method: "stop", StartLine: 11, EndLine: 14,
				ClassMetrics: models.ClassMetrics{LOC: 41},
			},
		},
	}
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	logger, _ := test.NewNullLogger()
	sink, err := NewCSVSink(dir, logger)
	require.NoError(t, err)

	snap := sampleSnapshot()
	require.NoError(t, sink.Write(context.Background(), snap))

	f, err := os.Open(filepath.Join(dir, "PROJ_training_2.csv"))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"1", "1.0", "src/Foo.java", "Foo", "run", "3", "9", "40", "2", "1", "3", "12", "8", "0", "Yes"}, records[1])
	assert.Equal(t, "No", records[2][len(records[2])-1])

	// no temporary files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLSinkSQLite(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	dsn := filepath.Join(t.TempDir(), "db", "dataset.db")

	sink, err := OpenSQLSink(ctx, DriverSQLite, dsn, "PROJ", logger)
	require.NoError(t, err)
	defer sink.Close()
	assert.NotEmpty(t, sink.RunID())

	snap := sampleSnapshot()
	require.NoError(t, sink.Write(ctx, snap))

	rows, err := sink.Rows(ctx, 2, walkforward.RoleTraining)
	require.NoError(t, err)
	assert.Equal(t, snap.Rows, rows)

	rows, err = sink.Rows(ctx, 2, walkforward.RoleTesting)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenSQLSinkRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQLSink(context.Background(), "mysql", "x", "PROJ", nil)
	assert.Error(t, err)
}

type failingSink struct{ calls int }

func (f *failingSink) Write(ctx context.Context, snap *walkforward.Snapshot) error {
	f.calls++
	return stderrors.New("disk full")
}

type countingSink struct{ calls int }

func (c *countingSink) Write(ctx context.Context, snap *walkforward.Snapshot) error {
	c.calls++
	return nil
}

func TestMultiSinkAttemptsEverySink(t *testing.T) {
	bad, good := &failingSink{}, &countingSink{}
	err := MultiSink{bad, good}.Write(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
}

func TestOpenSinks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()

	sinks, err := OpenSinks(ctx, SinkConfig{
		Type:      SinkBoth,
		OutputDir: filepath.Join(dir, "csv"),
		Driver:    DriverSQLite,
		DSN:       filepath.Join(dir, "dataset.db"),
	}, "PROJ", logger)
	require.NoError(t, err)
	assert.Len(t, sinks, 2)
	require.NoError(t, sinks.Write(ctx, sampleSnapshot()))
	assert.NoError(t, sinks.Close())

	_, err = OpenSinks(ctx, SinkConfig{Type: "parquet"}, "PROJ", logger)
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	type manifest struct {
		Project string  `yaml:"project"`
		PCold   float64 `yaml:"p_cold"`
	}
	path := filepath.Join(t.TempDir(), "runs", "manifest.yaml")

	require.NoError(t, WriteManifest(path, manifest{Project: "PROJ", PCold: 1.75}))

	var got manifest
	require.NoError(t, ReadManifest(path, &got))
	assert.Equal(t, manifest{Project: "PROJ", PCold: 1.75}, got)
}
