// Package ingestion builds the per-release class snapshots that the labeler
// marks and the dataset rows are drawn from.
package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/git"
	"github.com/rohankatakam/defectlab/internal/models"
	"github.com/rohankatakam/defectlab/internal/treesitter"
)

// SourceParser extracts the primary class and callables of a source file;
// *treesitter.SourceParser implements it
type SourceParser interface {
	Parse(path string, src []byte) (*treesitter.ParseResult, error)
}

// BuilderConfig holds configuration for snapshot building
type BuilderConfig struct {
	Extensions []string // Source extensions to snapshot (default: .java)
	Workers    int      // Number of concurrent parsers (default: 8)
}

// DefaultBuilderConfig returns default configuration
func DefaultBuilderConfig() *BuilderConfig {
	return &BuilderConfig{
		Extensions: []string{".java"},
		Workers:    8,
	}
}

// BuildResult summarizes a build
type BuildResult struct {
	Releases    int           `json:"releases" yaml:"releases"`
	CarriedOver int           `json:"carried_over" yaml:"carried_over"`
	FilesParsed int           `json:"files_parsed" yaml:"files_parsed"`
	FilesFailed int           `json:"files_failed" yaml:"files_failed"`
	CacheHits   int           `json:"cache_hits" yaml:"cache_hits"`
	Classes     int           `json:"classes" yaml:"classes"`
	Methods     int           `json:"methods" yaml:"methods"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	ParseErrors []string      `json:"-" yaml:"-"`
}

// Builder snapshots every source file of a release as of the release's last
// commit. Unchanged blobs are parsed once per Builder.
type Builder struct {
	config  *BuilderConfig
	backend git.Backend
	parser  SourceParser
	parsed  *gocache.Cache
	logger  logrus.FieldLogger
}

// NewBuilder creates a snapshot builder
func NewBuilder(config *BuilderConfig, backend git.Backend, parser SourceParser, logger logrus.FieldLogger) *Builder {
	if config == nil {
		config = DefaultBuilderConfig()
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultBuilderConfig().Extensions
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{
		config:  config,
		backend: backend,
		parser:  parser,
		parsed:  gocache.New(gocache.NoExpiration, 0),
		logger:  logger,
	}
}

// fileResult is the outcome of snapshotting one path
type fileResult struct {
	class  *models.ClassUnit
	cached bool
	err    error
}

// Build fills Classes of each release in order. A release without commits
// inherits a copy of the previous snapshot. Files that fail to parse are
// left out of the snapshot.
func (b *Builder) Build(ctx context.Context, releases []*models.Release) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{Releases: len(releases)}
	var previous *models.Release

	for _, r := range releases {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		last := r.LastCommit()
		if last == nil {
			r.SetClasses(carryOver(previous))
			result.CarriedOver++
			b.logger.WithField("release", r.Name).Debug("no commits in window, snapshot carried over")
		} else {
			classes, err := b.snapshot(ctx, last.SHA, result)
			if err != nil {
				return result, err
			}
			r.SetClasses(classes)
		}

		result.Classes += len(r.Classes)
		for _, c := range r.Classes {
			result.Methods += len(c.Methods)
		}
		previous = r
	}

	result.Duration = time.Since(start)
	b.logger.WithFields(logrus.Fields{
		"releases":     result.Releases,
		"files_parsed": result.FilesParsed,
		"files_failed": result.FilesFailed,
		"cache_hits":   result.CacheHits,
		"duration":     result.Duration,
	}).Info("release snapshots built")

	return result, nil
}

func (b *Builder) snapshot(ctx context.Context, sha string, result *BuildResult) ([]*models.ClassUnit, error) {
	var paths []string
	for _, ext := range b.config.Extensions {
		files, err := b.backend.ListFiles(ctx, sha, ext)
		if err != nil {
			return nil, errors.VCSErrorf(err, "list files at %s", sha)
		}
		paths = append(paths, files...)
	}

	results := b.parseParallel(ctx, sha, paths)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var classes []*models.ClassUnit
	for i, res := range results {
		if res.err != nil {
			result.FilesFailed++
			result.ParseErrors = append(result.ParseErrors, fmt.Sprintf("%s@%s: %v", paths[i], sha, res.err))
			b.logger.WithField("path", paths[i]).WithError(res.err).Warn("file left out of snapshot")
			continue
		}
		result.FilesParsed++
		if res.cached {
			result.CacheHits++
		}
		classes = append(classes, res.class)
	}

	sort.Slice(classes, func(i, j int) bool { return classes[i].Path < classes[j].Path })
	return classes, nil
}

// parseParallel snapshots paths with a fixed pool of workers; results keep
// the order of paths
func (b *Builder) parseParallel(ctx context.Context, sha string, paths []string) []fileResult {
	results := make([]fileResult, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < b.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.parseFile(ctx, sha, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func (b *Builder) parseFile(ctx context.Context, sha, path string) fileResult {
	src, err := b.backend.FileAt(ctx, sha, path)
	if err != nil {
		return fileResult{err: err}
	}

	sum := sha256.Sum256(src)
	key := path + "@" + hex.EncodeToString(sum[:])

	var parsed *treesitter.ParseResult
	cached := false
	if v, ok := b.parsed.Get(key); ok {
		parsed = v.(*treesitter.ParseResult)
		cached = true
	} else {
		parsed, err = b.parser.Parse(path, src)
		if err != nil {
			return fileResult{err: err}
		}
		b.parsed.Set(key, parsed, gocache.NoExpiration)
	}

	return fileResult{class: newClass(path, parsed, countLines(src)), cached: cached}
}

// newClass builds a fresh class unit; parse results are shared across
// releases so their spans are copied
func newClass(path string, parsed *treesitter.ParseResult, loc int) *models.ClassUnit {
	class := &models.ClassUnit{
		Name:      parsed.Class.Name,
		Path:      path,
		StartLine: parsed.Class.StartLine,
		EndLine:   parsed.Class.EndLine,
		Metrics:   models.ClassMetrics{LOC: loc},
	}
	for _, m := range parsed.Methods {
		class.Methods = append(class.Methods, &models.MethodUnit{
			Name:      m.Name,
			StartLine: m.StartLine,
			EndLine:   m.EndLine,
			Class:     class,
		})
	}
	return class
}

// carryOver copies the classes of prev with labels cleared
func carryOver(prev *models.Release) []*models.ClassUnit {
	if prev == nil {
		return nil
	}
	classes := make([]*models.ClassUnit, 0, len(prev.Classes))
	for _, c := range prev.Classes {
		cp := &models.ClassUnit{
			Name:      c.Name,
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Metrics:   models.ClassMetrics{LOC: c.Metrics.LOC},
		}
		for _, m := range c.Methods {
			cp.Methods = append(cp.Methods, &models.MethodUnit{
				Name:      m.Name,
				StartLine: m.StartLine,
				EndLine:   m.EndLine,
				Class:     cp,
			})
		}
		classes = append(classes, cp)
	}
	return classes
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte("\n"))
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
