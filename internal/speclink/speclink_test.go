package speclink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuild_ExtractsSpecIDsFromMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spec.md", "## SPEC-4.11 Adversarial Validator\nruns an iterative review loop.\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	e, ok := idx.BySpec[rlmtypes.SpecID{Major: 4, Minor: 11}]
	require.True(t, ok)
	assert.Contains(t, e.RequirementText, "Adversarial Validator")
}

func TestBuild_DetectsTheoremWithSorry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "proof.lean", "/-- @spec: SPEC-1.2 -/\ntheorem add_comm (a b : Nat) : a + b = b + a := by\n  sorry\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	e, ok := idx.BySpec[rlmtypes.SpecID{Major: 1, Minor: 2}]
	require.True(t, ok)
	require.Len(t, e.Theorems, 1)
	assert.Equal(t, "add_comm", e.Theorems[0].Name)
	assert.Equal(t, rlmtypes.TheoremHasSorry, e.Theorems[0].Status)
	assert.Equal(t, 1, e.Theorems[0].SorryCount)
	assert.Equal(t, rlmtypes.TheoremHasSorry, e.ProofStatus)
}

func TestBuild_DetectsCompleteTheorem(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "proof.lean", "/-- @spec: SPEC-1.3 -/\ntheorem trivial_eq : 1 = 1 := by rfl\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	e := idx.BySpec[rlmtypes.SpecID{Major: 1, Minor: 3}]
	require.NotNil(t, e)
	assert.Equal(t, rlmtypes.TheoremComplete, e.Theorems[0].Status)
}

func TestBuild_LinksTraceAnnotatedTests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "foo_test.go", "package foo\n\nfunc TestFoo(t *testing.T) {\n\t// @trace SPEC-2.5\n}\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	e := idx.BySpec[rlmtypes.SpecID{Major: 2, Minor: 5}]
	require.NotNil(t, e)
	require.Len(t, e.TestTraces, 1)
	assert.Equal(t, "TestFoo", e.TestTraces[0].TestName)
}

func TestBuild_CrossLinksToposAndLeanAnnotations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.tps", "element Widget {\n  @lean: proof.lean#widget_valid\n}\n")
	writeFile(t, dir, "proof.lean", "/-- @topos: model.tps#Widget -/\ntheorem widget_valid : True := trivial\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	require.Len(t, idx.Links, 1)
	assert.Equal(t, "proof.lean#widget_valid", idx.Links[0].LeanArtifact)
	assert.NotEmpty(t, idx.Links[0].LeanFile, "forward scan should have located the lean-side annotation")
}

func TestSummarize_CountsFormalizedAndComplete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.lean", "/-- @spec: SPEC-9.1 -/\ntheorem a : True := trivial\n")
	writeFile(t, dir, "b.md", "## SPEC-9.2\nunformalized requirement\n")

	idx, err := New(dir, nil).Build()
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Summary.TotalSpecs)
	assert.Equal(t, 1, idx.Summary.FormalizedCount)
	assert.Equal(t, 1, idx.Summary.CompleteCount)
}

func TestTracker_RebuildPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "## SPEC-1.1\nfirst\n")

	tracker, err := NewTracker(New(dir, nil))
	require.NoError(t, err)
	assert.Len(t, tracker.Snapshot().BySpec, 1)

	writeFile(t, dir, "b.md", "## SPEC-1.2\nsecond\n")
	require.NoError(t, tracker.Rebuild())
	assert.Len(t, tracker.Snapshot().BySpec, 2)
}

func TestTracker_WatchPicksUpFileCreationAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "## SPEC-1.1\nfirst\n")

	tracker, err := NewTracker(New(dir, nil))
	require.NoError(t, err)
	require.Len(t, tracker.Snapshot().BySpec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tracker.Watch(ctx, 50*time.Millisecond))

	writeFile(t, dir, "b.md", "## SPEC-1.2\nsecond\n")

	require.Eventually(t, func() bool {
		return len(tracker.Snapshot().BySpec) == 2
	}, 2*time.Second, 20*time.Millisecond)
}
