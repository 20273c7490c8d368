package embedding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known strings to fixed vectors so tests don't depend on
// a real API call.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestProofCorpus_SimilarToRanksByCosineSimilarity(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"n + 0 = n":        {1, 0, 0},
		"0 + n = n":        {0.9, 0.1, 0},
		"a * b = b * a":    {0, 1, 0},
		"query: n + 0 = n": {1, 0, 0},
	}}
	corpus := NewProofCorpus(embedder)
	require.NoError(t, corpus.Record(context.Background(), "n + 0 = n", "simp"))
	require.NoError(t, corpus.Record(context.Background(), "0 + n = n", "induction n; simp"))
	require.NoError(t, corpus.Record(context.Background(), "a * b = b * a", "ring"))

	similar, err := corpus.SimilarTo(context.Background(), "query: n + 0 = n", 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "simp", similar[0])
}

func TestProofCorpus_SaveAndLoadRoundTrips(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"g": {1, 2, 3}}}
	corpus := NewProofCorpus(embedder)
	require.NoError(t, corpus.Record(context.Background(), "g", "aesop"))

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, corpus.Save(path))

	loaded, err := LoadProofCorpus(path, embedder)
	require.NoError(t, err)
	require.Len(t, loaded.records, 1)
	assert.Equal(t, "aesop", loaded.records[0].Tactic)
}

func TestLoadProofCorpus_MissingFileYieldsEmptyCorpus(t *testing.T) {
	embedder := &fakeEmbedder{}
	corpus, err := LoadProofCorpus(filepath.Join(t.TempDir(), "missing.json"), embedder)
	require.NoError(t, err)
	assert.Empty(t, corpus.records)
}

func TestProofCorpus_SimilarToEmptyCorpusReturnsNil(t *testing.T) {
	corpus := NewProofCorpus(&fakeEmbedder{})
	similar, err := corpus.SimilarTo(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Nil(t, similar)
}
