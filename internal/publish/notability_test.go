package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/pkg/google"
	"github.com/beacon-intel/aiviz-cli/pkg/google/mocks"
	"github.com/beacon-intel/aiviz-cli/pkg/jina"
)

// fakeSearch implements jina.Client for notability tests.
type fakeSearch struct {
	resp      *jina.SearchResponse
	err       error
	lastQuery string
}

func (f *fakeSearch) Read(context.Context, string) (*jina.ReadResponse, error) {
	return nil, errors.New("read not configured")
}

func (f *fakeSearch) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func searchResults(urls ...string) *jina.SearchResponse {
	resp := &jina.SearchResponse{Code: 200}
	for _, u := range urls {
		resp.Data = append(resp.Data, jina.SearchResult{URL: u, Title: "result"})
	}
	return resp
}

func TestCheckNotability_NotableWhenReferencesMeetMinimum(t *testing.T) {
	fs := &fakeSearch{resp: searchResults(
		"https://news.example.com/acme",
		"https://chamber.example.org/members/acme",
		"https://reviews.example.net/acme-plumbing",
	)}
	p := New(Config{}, nil, WithSearch(fs))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "Austin, TX")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.InDelta(t, 0.7, res.Confidence, 0.001)
	assert.Len(t, res.References, 3)
	require.NotEmpty(t, res.Reasons)
	assert.Contains(t, res.Reasons[0], "3 independent web references")
}

func TestCheckNotability_BelowMinimum(t *testing.T) {
	fs := &fakeSearch{resp: searchResults(
		"https://news.example.com/acme",
		"https://reviews.example.net/acme-plumbing",
	)}
	p := New(Config{}, nil, WithSearch(fs))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.False(t, res.IsNotable)
	assert.InDelta(t, 0.47, res.Confidence, 0.001)
	assert.Len(t, res.References, 2)
	assert.Contains(t, res.Reasons[0], "only 2 of 3")
}

func TestCheckNotability_DeduplicatesAndCapsReferences(t *testing.T) {
	urls := []string{"https://dup.example.com", "https://dup.example.com", ""}
	for i := 0; i < 14; i++ {
		urls = append(urls, fmt.Sprintf("https://ref%d.example.com", i))
	}
	fs := &fakeSearch{resp: searchResults(urls...)}
	p := New(Config{}, nil, WithSearch(fs))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.Len(t, res.References, 10)
	assert.Equal(t, "https://dup.example.com", res.References[0])
}

func TestCheckNotability_PlacesBoostsConfidence(t *testing.T) {
	fs := &fakeSearch{resp: searchResults(
		"https://a.example.com", "https://b.example.com", "https://c.example.com",
	)}
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing Austin, TX").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{DisplayName: google.DisplayName{Text: "Acme Plumbing"}, Rating: 4.8, UserRatingCount: 50},
		},
	}, nil)

	p := New(Config{}, nil, WithSearch(fs), WithPlaces(mc))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "Austin, TX")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)
	require.Len(t, res.Reasons, 2)
	assert.Contains(t, res.Reasons[1], "50 reviews")
}

func TestCheckNotability_PlacesFallbackWithoutSearch(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{DisplayName: google.DisplayName{Text: "Acme Plumbing LLC"}, UserRatingCount: 30},
		},
	}, nil)

	p := New(Config{}, nil, WithPlaces(mc))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.InDelta(t, 0.24, res.Confidence, 0.001)
	assert.Contains(t, res.Reasons, "web search not configured")
}

func TestCheckNotability_PlacesFallbackBelowReviewFloor(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{DisplayName: google.DisplayName{Text: "Acme Plumbing"}, UserRatingCount: 5},
		},
	}, nil)

	p := New(Config{}, nil, WithPlaces(mc))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)
	assert.False(t, res.IsNotable)
}

func TestCheckNotability_SearchFailureFallsBackToPlaces(t *testing.T) {
	fs := &fakeSearch{err: errors.New("search down")}
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{DisplayName: google.DisplayName{Text: "Acme Plumbing"}, UserRatingCount: 50},
		},
	}, nil)

	p := New(Config{}, nil, WithSearch(fs), WithPlaces(mc))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.InDelta(t, 0.3, res.Confidence, 0.001)
	assert.Contains(t, res.Reasons, "web search failed")
}

func TestCheckNotability_NoSignalsConfigured(t *testing.T) {
	p := New(Config{}, nil)

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.False(t, res.IsNotable)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Reasons, "web search not configured")
}

func TestCheckNotability_EmptyNameRejected(t *testing.T) {
	p := New(Config{}, nil)

	res, err := p.CheckNotability(context.Background(), "   ", "")
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestCheckNotability_QuotesBusinessNameInSearch(t *testing.T) {
	fs := &fakeSearch{resp: searchResults("https://a.example.com")}
	p := New(Config{}, nil, WithSearch(fs))

	_, err := p.CheckNotability(context.Background(), "Acme Plumbing", "Austin, TX")
	require.NoError(t, err)
	assert.Equal(t, `"Acme Plumbing" Austin, TX`, fs.lastQuery)
}

func TestCheckNotability_NoPlacesListingFound(t *testing.T) {
	fs := &fakeSearch{resp: searchResults(
		"https://a.example.com", "https://b.example.com", "https://c.example.com",
	)}
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{DisplayName: google.DisplayName{Text: "Completely Different Biz"}},
		},
	}, nil)

	p := New(Config{}, nil, WithSearch(fs), WithPlaces(mc))

	res, err := p.CheckNotability(context.Background(), "Acme Plumbing", "")
	require.NoError(t, err)

	assert.True(t, res.IsNotable)
	assert.Contains(t, res.Reasons, "no places listing found")
	assert.InDelta(t, 0.7, res.Confidence, 0.001)
}

func TestBackfillLocation(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{
				DisplayName:      google.DisplayName{Text: "Acme Plumbing"},
				FormattedAddress: "123 Main St, Austin, TX 78701",
			},
		},
	}, nil)

	p := New(Config{}, nil, WithPlaces(mc))

	loc, err := p.BackfillLocation(context.Background(), "Acme Plumbing")
	require.NoError(t, err)
	assert.Equal(t, "123 Main St, Austin, TX 78701", loc)
}

func TestBackfillLocation_NoClient(t *testing.T) {
	p := New(Config{}, nil)

	loc, err := p.BackfillLocation(context.Background(), "Acme Plumbing")
	require.NoError(t, err)
	assert.Empty(t, loc)
}

func TestBackfillLocation_NoMatch(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(&google.TextSearchResponse{}, nil)

	p := New(Config{}, nil, WithPlaces(mc))

	loc, err := p.BackfillLocation(context.Background(), "Acme Plumbing")
	require.NoError(t, err)
	assert.Empty(t, loc)
}

func TestBackfillLocation_Error(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("TextSearch", mock.Anything, "Acme Plumbing").Return(nil, errors.New("quota exceeded"))

	p := New(Config{}, nil, WithPlaces(mc))

	loc, err := p.BackfillLocation(context.Background(), "Acme Plumbing")
	assert.Error(t, err)
	assert.Empty(t, loc)
	assert.Contains(t, err.Error(), "publish: backfill location")
}

func TestMatchesName(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		business  string
		want      bool
	}{
		{"exact", "Acme Plumbing", "Acme Plumbing", true},
		{"case insensitive", "ACME PLUMBING", "acme plumbing", true},
		{"candidate contains name", "Acme Plumbing LLC", "Acme Plumbing", true},
		{"name contains candidate", "Acme Plumbing", "Acme Plumbing of Austin", true},
		{"unrelated", "Bob's Burgers", "Acme Plumbing", false},
		{"empty candidate", "", "Acme Plumbing", false},
		{"empty name", "Acme Plumbing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesName(tt.candidate, tt.business))
		})
	}
}
