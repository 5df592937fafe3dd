// Package storage persists walk-forward snapshots and run manifests.
package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/walkforward"
)

// csvHeader lists the dataset columns in file order
var csvHeader = []string{
	"Release", "ReleaseName", "Path", "Class", "Method", "StartLine", "EndLine",
	"LOC", "NR", "NAuth", "CumulativeAuthors", "Churn", "MaxChurn", "Age", "Buggy",
}

// CSVSink writes one CSV file per snapshot into a directory
type CSVSink struct {
	dir    string
	logger logrus.FieldLogger
}

// NewCSVSink creates dir if needed and returns a sink writing into it
func NewCSVSink(dir string, logger logrus.FieldLogger) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CSVSink{dir: dir, logger: logger}, nil
}

// FileName returns the file a snapshot is written to
func FileName(snap *walkforward.Snapshot) string {
	return fmt.Sprintf("%s_%s_%d.csv", snap.Project, snap.Role, snap.Iteration)
}

// Write writes snap to <dir>/<project>_<role>_<iteration>.csv. The file is
// written under a temporary name and renamed when complete.
func (s *CSVSink) Write(ctx context.Context, snap *walkforward.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, FileName(snap))
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range snap.Rows {
		if err := w.Write(csvRecord(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}

	s.logger.WithFields(logrus.Fields{"path": path, "rows": len(snap.Rows)}).Debug("snapshot written")
	return nil
}

func csvRecord(r walkforward.Row) []string {
	buggy := "No"
	if r.Buggy {
		buggy = "Yes"
	}
	return []string{
		strconv.Itoa(r.ReleaseIndex),
		r.ReleaseName,
		r.ClassPath,
		r.ClassName,
		r.Method,
		strconv.Itoa(r.StartLine),
		strconv.Itoa(r.EndLine),
		strconv.Itoa(r.LOC),
		strconv.Itoa(r.Revisions),
		strconv.Itoa(r.Authors),
		strconv.Itoa(r.CumulativeAuthors),
		strconv.Itoa(r.Churn),
		strconv.Itoa(r.MaxChurn),
		strconv.Itoa(r.AgeReleases),
		buggy,
	}
}
