package analyzer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prempunmagar/trustcard/internal/analyzer"
	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/store"
)

type fakeDirectory struct {
	mu      sync.Mutex
	sources map[string]store.Source
	lookups map[string]int
	err     error
}

func newDirectory(sources ...store.Source) *fakeDirectory {
	d := &fakeDirectory{sources: map[string]store.Source{}, lookups: map[string]int{}}
	for _, s := range sources {
		d.sources[s.Domain] = s
	}
	return d
}

func (d *fakeDirectory) LookupSource(_ context.Context, domain string) (store.Source, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[domain]++
	if d.err != nil {
		return store.Source{}, false, d.err
	}
	s, ok := d.sources[domain]
	return s, ok, nil
}

func checkReputation(t *testing.T, dir analyzer.SourceDirectory, in analyzer.ReputationInput) *model.ReputationPayload {
	t.Helper()
	r, err := analyzer.NewSourceReputation(dir, 0, nil)
	require.NoError(t, err)
	out, err := r.CheckReputation(context.Background(), in)
	require.NoError(t, err)
	return out
}

var testSources = []store.Source{
	{Domain: "reuters.com", Bias: "center", Reliability: analyzer.RatingVeryHigh},
	{Domain: "infowars.com", Bias: "extreme-right", Reliability: analyzer.RatingVeryLow},
	{Domain: "theonion.com", Bias: "varies", Reliability: analyzer.RatingSatire},
	{Domain: "dailymail.co.uk", Bias: "right", Reliability: analyzer.RatingLow},
}

func TestSourceReputation_ConspiracyWinsOverSatire(t *testing.T) {
	t.Parallel()
	out := checkReputation(t, newDirectory(testSources...), analyzer.ReputationInput{
		Text: "see https://www.infowars.com/a and https://theonion.com/b",
	})

	require.Len(t, out.Sources, 2)
	assert.True(t, out.HasConspiracy)
	assert.True(t, out.HasUnreliableSources)
	assert.True(t, out.HasSatire)
	assert.InDelta(t, 0.05, out.AvgReliability, 1e-9)
	assert.Equal(t, 0.0, out.LowestReliability)
	assert.Contains(t, out.OverallAssessment, "conspiracy")
}

func TestSourceReputation_Satire(t *testing.T) {
	t.Parallel()
	out := checkReputation(t, newDirectory(testSources...), analyzer.ReputationInput{Text: "lol https://theonion.com/x"})

	assert.True(t, out.HasSatire)
	assert.False(t, out.HasConspiracy)
	assert.Contains(t, out.Sources[0].Assessment, "SATIRE")
	assert.Contains(t, out.Recommendation, "satirical")
}

func TestSourceReputation_CredibleAndUnknown(t *testing.T) {
	t.Parallel()
	out := checkReputation(t, newDirectory(testSources...), analyzer.ReputationInput{
		Text: "https://news.reuters.com/x https://blog.example.org/y",
	})

	require.Len(t, out.Sources, 2)
	assert.Equal(t, "reuters.com", out.Sources[0].Domain)
	assert.True(t, out.Sources[0].InDirectory)
	assert.Equal(t, "This source has excellent factual reporting with minimal bias.", out.Sources[0].Assessment)
	assert.Equal(t, "example.org", out.Sources[1].Domain)
	assert.False(t, out.Sources[1].InDirectory)
	assert.Equal(t, 0.5, out.Sources[1].Score)
	assert.InDelta(t, 0.75, out.AvgReliability, 1e-9)
	assert.False(t, out.HasUnreliableSources)
}

func TestSourceReputation_AuthorFallback(t *testing.T) {
	t.Parallel()
	dir := newDirectory()

	verified := checkReputation(t, dir, analyzer.ReputationInput{Text: "no links here", Author: model.Author{Username: "a", Verified: true}})
	assert.Empty(t, verified.Sources)
	assert.Equal(t, 0.6, verified.AvgReliability)
	assert.Equal(t, 0.6, verified.LowestReliability)

	anon := checkReputation(t, dir, analyzer.ReputationInput{Text: "no links here"})
	assert.Equal(t, 0.4, anon.AvgReliability)
	assert.Equal(t, "unknown", anon.Author.Username)
	assert.Empty(t, dir.lookups)
}

func TestSourceReputation_CapsAndMemoizes(t *testing.T) {
	t.Parallel()
	dir := newDirectory(testSources...)
	r, err := analyzer.NewSourceReputation(dir, 16, nil)
	require.NoError(t, err)

	text := "https://reuters.com/1 https://reuters.com/2 https://reuters.com/3 " +
		"https://reuters.com/4 https://reuters.com/5 https://reuters.com/6 https://reuters.com/7"
	out, err := r.CheckReputation(context.Background(), analyzer.ReputationInput{Text: text})
	require.NoError(t, err)
	assert.Len(t, out.Sources, 5)
	assert.Equal(t, 1, dir.lookups["reuters.com"])

	_, err = r.CheckReputation(context.Background(), analyzer.ReputationInput{Text: "https://reuters.com/8"})
	require.NoError(t, err)
	assert.Equal(t, 1, dir.lookups["reuters.com"])

	r.Purge()
	_, err = r.CheckReputation(context.Background(), analyzer.ReputationInput{Text: "https://reuters.com/9"})
	require.NoError(t, err)
	assert.Equal(t, 2, dir.lookups["reuters.com"])
}

func TestSourceReputation_DirectoryError(t *testing.T) {
	t.Parallel()
	dir := newDirectory()
	dir.err = errors.New("db closed")
	r, err := analyzer.NewSourceReputation(dir, 0, nil)
	require.NoError(t, err)

	_, err = r.CheckReputation(context.Background(), analyzer.ReputationInput{Text: "https://x.org/a"})
	assert.ErrorContains(t, err, "db closed")

	_, err = analyzer.NewSourceReputation(nil, 0, nil)
	assert.Error(t, err)
}

func TestReliabilityScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, analyzer.ReliabilityScore(analyzer.RatingVeryHigh))
	assert.Equal(t, 0.0, analyzer.ReliabilityScore(analyzer.RatingSatire))
	assert.Equal(t, 0.5, analyzer.ReliabilityScore("made-up"))
}
