package models

import (
	"time"
)

// Release is one published version of the analysed project.
// Releases are compared by VersionID; Index is the 1-based rank by Date.
type Release struct {
	Index     int       `json:"index" db:"release_index"`
	Name      string    `json:"name" db:"release_name"`
	Date      time.Time `json:"date" db:"release_date"`
	VersionID string    `json:"version_id" db:"version_id"`

	// Commits whose timestamp falls in (previous.Date, Date], oldest first
	Commits []*Commit `json:"-"`
	// Classes is the code snapshot taken at the release's last commit
	Classes []*ClassUnit `json:"-"`

	classByPath map[string]*ClassUnit
}

// Equal reports whether both releases carry the same version id
func (r *Release) Equal(other *Release) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.VersionID == other.VersionID
}

// LastCommit returns the newest commit of the release window, or nil
func (r *Release) LastCommit() *Commit {
	if len(r.Commits) == 0 {
		return nil
	}
	return r.Commits[len(r.Commits)-1]
}

// SetClasses replaces the class snapshot and rebuilds the path index
func (r *Release) SetClasses(classes []*ClassUnit) {
	r.Classes = classes
	r.classByPath = make(map[string]*ClassUnit, len(classes))
	for _, c := range classes {
		c.Release = r
		r.classByPath[c.Path] = c
	}
}

// Class returns the class snapshot stored under path
func (r *Release) Class(path string) *ClassUnit {
	if r.classByPath == nil {
		return nil
	}
	return r.classByPath[path]
}

// ResetBuggy clears every method label of the release
func (r *Release) ResetBuggy() {
	for _, c := range r.Classes {
		for _, m := range c.Methods {
			m.Buggy = false
		}
	}
}

// IVOrigin records where a ticket's injected version came from
type IVOrigin int

const (
	IVUnknown IVOrigin = iota
	// IVFromTracker means the tracker's affected versions were trusted
	IVFromTracker
	// IVEstimated means the injected version was computed with Proportion
	IVEstimated
)

// Ticket is a fixed bug report
type Ticket struct {
	Key            string    `json:"key"`
	CreationDate   time.Time `json:"creation_date"`
	ResolutionDate time.Time `json:"resolution_date"`

	OpeningVersion  *Release `json:"-"`
	FixedVersion    *Release `json:"-"`
	InjectedVersion *Release `json:"-"`
	// AffectedVersions holds the tracker's list until the injected version is
	// known, then [InjectedVersion, FixedVersion)
	AffectedVersions []*Release `json:"-"`
	IVOrigin         IVOrigin   `json:"iv_origin"`

	Commits []*Commit `json:"-"`
}

// Resolvable reports whether both opening and fixed versions are known
func (t *Ticket) Resolvable() bool {
	return t.OpeningVersion != nil && t.FixedVersion != nil
}

// HasIV reports whether the injected version is set
func (t *Ticket) HasIV() bool {
	return t.InjectedVersion != nil
}

// Clone returns a copy that can be modified without touching t
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.AffectedVersions = append([]*Release(nil), t.AffectedVersions...)
	c.Commits = append([]*Commit(nil), t.Commits...)
	return &c
}

// ClassMetrics are historical metrics of a class inside one release
type ClassMetrics struct {
	LOC               int `json:"loc" db:"loc"`
	Revisions         int `json:"revisions" db:"revisions"`
	Authors           int `json:"authors" db:"authors"`
	CumulativeAuthors int `json:"cumulative_authors" db:"cumulative_authors"`
	Churn             int `json:"churn" db:"churn"`
	MaxChurn          int `json:"max_churn" db:"max_churn"`
	AgeReleases       int `json:"age_releases" db:"age_releases"`
}

// ClassUnit is one source file of a release snapshot
type ClassUnit struct {
	Name      string        `json:"name"`
	Path      string        `json:"path"`
	StartLine int           `json:"start_line"`
	EndLine   int           `json:"end_line"`
	Release   *Release      `json:"-"`
	Methods   []*MethodUnit `json:"methods"`
	Metrics   ClassMetrics  `json:"metrics"`
}

// MethodUnit is a callable (method or constructor) inside a class
type MethodUnit struct {
	Name      string     `json:"name"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Class     *ClassUnit `json:"-"`
	Buggy     bool       `json:"buggy"`
}

// Commit represents a git commit
type Commit struct {
	SHA         string    `json:"sha" db:"sha"`
	Author      string    `json:"author" db:"author"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	Message     string    `json:"message" db:"message"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	ParentSHAs  []string  `json:"parent_shas"`
}

// FirstParent returns the first parent SHA, or "" for a root commit
func (c *Commit) FirstParent() string {
	if len(c.ParentSHAs) == 0 {
		return ""
	}
	return c.ParentSHAs[0]
}

// Edit is one changed region of a file diff. Lines are 1-based and
// inclusive; an empty side has End == Start-1 and Start pointing at the line
// that follows the change point.
type Edit struct {
	OldStart int `json:"old_start"`
	OldEnd   int `json:"old_end"`
	NewStart int `json:"new_start"`
	NewEnd   int `json:"new_end"`
}

// OldRange returns the edited range measured in the pre-change file.
// Pure insertions are anchored to the old line following the insertion.
func (e Edit) OldRange() (int, int) {
	if e.OldEnd >= e.OldStart {
		return e.OldStart, e.OldEnd
	}
	return e.OldStart, e.OldStart
}

// FileDiff lists the edits of one file between two commits.
// OldPath is empty for added files, NewPath is empty for deleted files.
type FileDiff struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
	Edits   []Edit `json:"edits"`
}

// Path returns the post-change path, falling back to the old one
func (d FileDiff) Path() string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}

// FileStat is the line churn of one file in one commit
type FileStat struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Span is a named line range produced by the source parser
type Span struct {
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}
