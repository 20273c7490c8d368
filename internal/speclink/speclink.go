// Package speclink scans a project tree for requirement, proof, and test
// files and builds a bidirectional coverage index between spec ids,
// formalized theorems, and tests that exercise them.
package speclink

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/mangle"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

var (
	specIDPattern    = regexp.MustCompile(`SPEC-(\d+)\.(\d+)`)
	leanDeclPattern  = regexp.MustCompile(`^\s*(theorem|lemma|def|structure)\s+([A-Za-z_][A-Za-z0-9_'.]*)`)
	leanSorryPattern = regexp.MustCompile(`\bsorry\b`)
	traceAnnotation  = regexp.MustCompile(`(?://\s*@trace\s+|//\s*trace:\s*)(SPEC-\d+\.\d+)`)
	leanTopos        = regexp.MustCompile(`@topos:\s*(\S+)`)
	leanSpecRef      = regexp.MustCompile(`@spec:\s*(SPEC-\d+\.\d+)`)
	toposLean        = regexp.MustCompile(`@lean:\s*(\S+)`)
	goTestFunc       = regexp.MustCompile(`^func (Test\w+)\(`)
)

// Link is one discovered (topos element, lean artifact) cross-reference.
type Link struct {
	ToposElem    string
	LeanArtifact string
	ToposFile    string
	ToposLine    int
	LeanFile     string
	LeanLine     int
}

// Index is the built spec-coverage index: an immutable snapshot produced
// by Build, plus the bidirectional topos/lean link table.
type Index struct {
	BySpec  map[rlmtypes.SpecID]*rlmtypes.SpecCoverageEntry
	Links   []Link
	Summary Summary
}

// Summary aggregates index-wide counts, per spec.md's "total_specs,
// formalized_count, complete_count, ..." requirement.
type Summary struct {
	TotalSpecs      int
	FormalizedCount int
	CompleteCount   int
	HasSorryCount   int
	FailedCount     int
}

// Builder scans a project root and produces an Index. It is immutable
// once Build returns; use Tracker for incremental updates.
type Builder struct {
	Root           string
	IgnoreDirs     map[string]bool
	engine         *mangle.Engine
}

// DefaultIgnoreDirs mirrors the usual VCS/build noise a scan should skip.
func DefaultIgnoreDirs() map[string]bool {
	return map[string]bool{".git": true, "node_modules": true, "vendor": true, ".nerd": true}
}

// New constructs a Builder rooted at root. engine may be nil; when
// non-nil, every discovered link is additionally asserted as a
// spec_link mangle fact.
func New(root string, engine *mangle.Engine) *Builder {
	return &Builder{Root: root, IgnoreDirs: DefaultIgnoreDirs(), engine: engine}
}

// Build walks Root once, extracting spec ids from markdown, theorem
// declarations from Lean files, and @trace annotations from test files,
// then links them into a SpecId -> SpecCoverage map plus a topos/lean
// cross-reference table.
func (b *Builder) Build() (*Index, error) {
	idx := &Index{BySpec: make(map[rlmtypes.SpecID]*rlmtypes.SpecCoverageEntry)}

	err := filepath.WalkDir(b.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if b.IgnoreDirs[d.Name()] && path != b.Root {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".md"):
			b.scanMarkdown(path, idx)
		case strings.HasSuffix(path, ".lean"):
			b.scanLean(path, idx)
		case strings.HasSuffix(path, "_test.go"):
			b.scanGoTest(path, idx)
		case strings.HasSuffix(path, ".tps"):
			b.scanTopos(path, idx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.crossLink(idx)
	idx.Summary = summarize(idx.BySpec)
	logging.SpecLink("indexed %d spec requirements from %s", len(idx.BySpec), b.Root)
	return idx, nil
}

func (b *Builder) entry(idx *Index, id rlmtypes.SpecID) *rlmtypes.SpecCoverageEntry {
	e, ok := idx.BySpec[id]
	if !ok {
		e = &rlmtypes.SpecCoverageEntry{SpecID: id, ProofStatus: rlmtypes.TheoremNotFormalized}
		idx.BySpec[id] = e
	}
	return e
}

func parseSpecID(s string) (rlmtypes.SpecID, bool) {
	m := specIDPattern.FindStringSubmatch(s)
	if m == nil {
		return rlmtypes.SpecID{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return rlmtypes.SpecID{Major: major, Minor: minor}, true
}

// scanMarkdown records every SPEC-XX.YY mentioned, with the first line of
// surrounding text as the requirement summary if none is set yet.
func (b *Builder) scanMarkdown(path string, idx *Index) {
	f, err := os.Open(path)
	if err != nil {
		logging.SpecLinkWarn("cannot open %s: %v", path, err)
		return
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, m := range specIDPattern.FindAllString(line, -1) {
			id, ok := parseSpecID(m)
			if !ok {
				continue
			}
			e := b.entry(idx, id)
			if e.RequirementText == "" {
				e.RequirementText = strings.TrimSpace(strings.ReplaceAll(line, m, ""))
				e.SpecSource = path
				e.SpecLine = lineNo
			}
		}
	}
}

// scanLean finds theorem/lemma/def/structure declarations whose preceding
// doc comment mentions a spec id, tallying sorry occurrences for status.
func (b *Builder) scanLean(path string, idx *Index) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.SpecLinkWarn("cannot read %s: %v", path, err)
		return
	}
	lines := strings.Split(string(data), "\n")

	var pendingSpec string
	var docBuf []string
	inDoc := false

	for i, raw := range lines {
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, "/--") {
			inDoc = true
			docBuf = docBuf[:0]
		}
		if inDoc {
			docBuf = append(docBuf, raw)
			if m := leanSpecRef.FindStringSubmatch(raw); m != nil {
				pendingSpec = m[1]
			}
			if strings.Contains(trimmed, "-/") {
				inDoc = false
			}
			continue
		}

		if m := leanDeclPattern.FindStringSubmatch(raw); m != nil && pendingSpec != "" {
			id, ok := parseSpecID(pendingSpec)
			if !ok {
				pendingSpec = ""
				continue
			}
			name := m[2]
			status, sorryCount := b.theoremStatus(lines, i)
			e := b.entry(idx, id)
			e.Theorems = append(e.Theorems, rlmtypes.TheoremRef{
				Name: name, File: path, Line: i + 1, Status: status, SorryCount: sorryCount,
			})
			e.ProofStatus = rlmtypes.WorstTheoremStatus(append([]rlmtypes.TheoremStatus{e.ProofStatus}, status))
			pendingSpec = ""
		}
	}
}

// theoremStatus scans from the declaration line to the next blank line or
// declaration, counting sorry occurrences to classify the theorem.
func (b *Builder) theoremStatus(lines []string, declLine int) (rlmtypes.TheoremStatus, int) {
	sorryCount := 0
	body := false
	for i := declLine; i < len(lines); i++ {
		line := lines[i]
		if i > declLine {
			if strings.TrimSpace(line) == "" {
				break
			}
			if leanDeclPattern.MatchString(line) {
				break
			}
		}
		sorryCount += len(leanSorryPattern.FindAllString(line, -1))
		if strings.Contains(line, ":=") {
			body = true
		}
	}
	switch {
	case sorryCount > 0:
		return rlmtypes.TheoremHasSorry, sorryCount
	case body:
		return rlmtypes.TheoremComplete, 0
	default:
		return rlmtypes.TheoremStated, 0
	}
}

// scanGoTest records every test function annotated with @trace or
// trace: SPEC-XX.YY in its body.
func (b *Builder) scanGoTest(path string, idx *Index) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.SpecLinkWarn("cannot read %s: %v", path, err)
		return
	}
	lines := strings.Split(string(data), "\n")

	var currentTest string
	var currentLine int
	for i, line := range lines {
		if m := goTestFunc.FindStringSubmatch(line); m != nil {
			currentTest = m[1]
			currentLine = i + 1
		}
		if m := traceAnnotation.FindStringSubmatch(line); m != nil && currentTest != "" {
			id, ok := parseSpecID(m[1])
			if !ok {
				continue
			}
			e := b.entry(idx, id)
			e.TestTraces = append(e.TestTraces, rlmtypes.TestTrace{TestName: currentTest, File: path, Line: currentLine})
		}
	}
}

// scanTopos records @lean: annotations found within .tps files; the
// enclosing element is taken to be the nearest non-blank line above the
// annotation, per the backward-lookup rule.
func (b *Builder) scanTopos(path string, idx *Index) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.SpecLinkWarn("cannot read %s: %v", path, err)
		return
	}
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		m := toposLean.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		elem := enclosingElement(lines, i, -1)
		idx.Links = append(idx.Links, Link{
			ToposElem: elem, ToposFile: path, ToposLine: i + 1, LeanArtifact: m[1],
		})
	}
}

// enclosingElement walks lines from start in the given direction (-1
// backward, +1 forward), skipping blanks, and returns the first non-blank
// line found, trimmed. Used to locate the element/artifact an annotation
// belongs to when the annotation itself doesn't name it.
func enclosingElement(lines []string, start, direction int) string {
	for i := start + direction; i >= 0 && i < len(lines); i += direction {
		t := strings.TrimSpace(lines[i])
		if t == "" {
			continue
		}
		return t
	}
	return ""
}

// crossLink re-walks the Lean files for @topos: annotations (scanLean only
// reads @spec:). The declaration after each annotation is its artifact;
// every topos-side link whose @lean: path#artifact names that file and
// declaration gets its LeanFile and LeanLine filled in.
func (b *Builder) crossLink(idx *Index) {
	_ = filepath.WalkDir(b.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || !strings.HasSuffix(path, ".lean") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		lines := strings.Split(string(data), "\n")
		for i, line := range lines {
			m := leanTopos.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			// Lean annotations live inside a doc comment preceding the
			// artifact; the artifact name is the next declaration found
			// looking forward.
			artifact := ""
			for j := i + 1; j < len(lines); j++ {
				if dm := leanDeclPattern.FindStringSubmatch(lines[j]); dm != nil {
					artifact = dm[2]
					break
				}
			}
			p := filepath.ToSlash(path)
			for li := range idx.Links {
				leanPath, leanName, ok := strings.Cut(idx.Links[li].LeanArtifact, "#")
				if ok && artifact != "" && leanName == artifact && (p == leanPath || strings.HasSuffix(p, "/"+leanPath)) {
					idx.Links[li].LeanFile = path
					idx.Links[li].LeanLine = i + 1
				}
			}
			if artifact != "" && b.engine != nil {
				if err := b.engine.AssertSpecLink(artifact, path, "lean_artifact", i+1); err != nil {
					logging.SpecLinkWarn("assert spec_link failed: %v", err)
				}
			}
		}
		return nil
	})

	if b.engine != nil {
		for _, l := range idx.Links {
			if err := b.engine.AssertSpecLink(l.ToposElem, l.ToposFile, "topos_elem", l.ToposLine); err != nil {
				logging.SpecLinkWarn("assert spec_link failed: %v", err)
			}
		}
	}
}

func summarize(bySpec map[rlmtypes.SpecID]*rlmtypes.SpecCoverageEntry) Summary {
	s := Summary{TotalSpecs: len(bySpec)}
	for _, e := range bySpec {
		if len(e.Theorems) > 0 {
			s.FormalizedCount++
		}
		switch e.ProofStatus {
		case rlmtypes.TheoremComplete:
			s.CompleteCount++
		case rlmtypes.TheoremHasSorry:
			s.HasSorryCount++
		case rlmtypes.TheoremFailed:
			s.FailedCount++
		}
	}
	return s
}

// Tracker wraps an Index with a lock for incremental single-file
// rebuilds, per the spec's "immutable after build() but a tracker
// variant offers incremental updates guarded by its own lock" note.
type Tracker struct {
	mu      sync.RWMutex
	builder *Builder
	idx     *Index
}

// NewTracker builds an initial index and wraps it for incremental use.
func NewTracker(builder *Builder) (*Tracker, error) {
	idx, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return &Tracker{builder: builder, idx: idx}, nil
}

// Snapshot returns the tracker's current index.
func (t *Tracker) Snapshot() *Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.idx
}

// Rebuild re-scans the whole tree and replaces the tracker's index. A
// true incremental (single-file) rebuild is not implemented; the glob
// scan is already fast enough in practice that re-running it on change
// is the simplest correct option.
func (t *Tracker) Rebuild() error {
	idx, err := t.builder.Build()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.idx = idx
	t.mu.Unlock()
	return nil
}

// Watch recursively adds builder.Root's directories to an fsnotify watcher
// and calls Rebuild on a debounced trailing edge of filesystem activity,
// until ctx is cancelled. It returns once the watcher is set up; the event
// loop runs in its own goroutine.
func (t *Tracker) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	ignore := t.builder.IgnoreDirs
	err = filepath.WalkDir(t.builder.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignore[d.Name()] {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return err
	}

	go t.watchLoop(ctx, watcher, debounce)
	return nil
}

func (t *Tracker) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.SpecLinkWarn("watcher error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := t.Rebuild(); err != nil {
				logging.SpecLinkWarn("incremental rebuild failed: %v", err)
			} else {
				logging.SpecLinkDebug("incremental rebuild complete")
			}
		}
	}
}
