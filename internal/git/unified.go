package git

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rohankatakam/defectlab/internal/models"
)

// Regex patterns for parsing zero-context unified diffs
var (
	// Match: diff --git a/path/to/File.java b/path/to/File.java
	diffHeaderRegex = regexp.MustCompile(`^diff --git a/(.+?) b/(.+?)$`)

	// Match: @@ -42,10 +42,15 @@ optional section heading
	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

	// Match: Binary files a/x and b/x differ
	binaryRegex = regexp.MustCompile(`^Binary files `)
)

// ParseUnifiedDiff parses `git diff --unified=0` output into per-file edits.
// Files are returned in diff order; binary files are dropped.
func ParseUnifiedDiff(diffContent string) []models.FileDiff {
	var (
		files   []models.FileDiff
		current *models.FileDiff
		binary  bool
	)

	save := func() {
		if current != nil && !binary && len(current.Edits) > 0 {
			files = append(files, *current)
		}
	}

	for _, line := range strings.Split(diffContent, "\n") {
		if matches := diffHeaderRegex.FindStringSubmatch(line); matches != nil {
			save()
			current = &models.FileDiff{OldPath: matches[1], NewPath: matches[2]}
			binary = false
			continue
		}

		if current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "new file mode"):
			current.OldPath = ""
		case strings.HasPrefix(line, "deleted file mode"):
			current.NewPath = ""
		case binaryRegex.MatchString(line):
			binary = true
		case strings.HasPrefix(line, "@@ "):
			if matches := hunkHeaderRegex.FindStringSubmatch(line); matches != nil {
				current.Edits = append(current.Edits, hunkEdit(matches))
			}
		}
	}
	save()

	return files
}

// hunkEdit converts a hunk header into an edit. A zero count means that
// side is empty: the change point follows line start, so the range begins
// at start+1 and ends at start.
func hunkEdit(matches []string) models.Edit {
	oldStart, _ := strconv.Atoi(matches[1])
	oldCount := 1
	if matches[2] != "" {
		oldCount, _ = strconv.Atoi(matches[2])
	}

	newStart, _ := strconv.Atoi(matches[3])
	newCount := 1
	if matches[4] != "" {
		newCount, _ = strconv.Atoi(matches[4])
	}

	if oldCount == 0 {
		oldStart++
	}
	if newCount == 0 {
		newStart++
	}

	return models.Edit{
		OldStart: oldStart,
		OldEnd:   oldStart + oldCount - 1,
		NewStart: newStart,
		NewEnd:   newStart + newCount - 1,
	}
}

// parseNumstat parses `--numstat` output. Binary entries ("-") count as
// zero lines.
func parseNumstat(output string) []models.FileStat {
	var stats []models.FileStat
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		add, _ := strconv.Atoi(parts[0])
		del, _ := strconv.Atoi(parts[1])
		stats = append(stats, models.FileStat{Path: parts[2], Additions: add, Deletions: del})
	}
	return stats
}
