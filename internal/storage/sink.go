package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/walkforward"
)

// Sink types
const (
	SinkCSV  = "csv"
	SinkSQL  = "sql"
	SinkBoth = "both"
)

// MultiSink writes each snapshot to every sink. All sinks are attempted; a
// failure of any of them fails the write.
type MultiSink []walkforward.Sink

// Write implements walkforward.Sink
func (m MultiSink) Write(ctx context.Context, snap *walkforward.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SinkConfig selects and configures the dataset sinks
type SinkConfig struct {
	Type      string // csv, sql or both
	OutputDir string
	Driver    string
	DSN       string
}

// OpenSinks opens the sinks named by cfg.Type for project
func OpenSinks(ctx context.Context, cfg SinkConfig, project string, logger logrus.FieldLogger) (MultiSink, error) {
	var sinks MultiSink

	if cfg.Type == SinkCSV || cfg.Type == SinkBoth {
		csvSink, err := NewCSVSink(cfg.OutputDir, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, csvSink)
	}

	if cfg.Type == SinkSQL || cfg.Type == SinkBoth {
		sqlSink, err := OpenSQLSink(ctx, cfg.Driver, cfg.DSN, project, logger)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, sqlSink)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
	return sinks, nil
}
