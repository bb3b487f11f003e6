package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func TestBuildEntity_FullBusinessAndCrawl(t *testing.T) {
	p := New(Config{}, nil)

	biz := &model.Business{
		Name:     "Acme Plumbing",
		URL:      "https://acme.com",
		Category: "plumber",
		Location: "Austin, TX",
	}
	crawl := &model.CrawlData{
		Title:       "Acme Plumbing | Trusted Since 1980",
		Description: "Family-owned plumbing contractor serving the Austin metro.",
		Services:    []string{"Drain Cleaning", "Water Heater Repair"},
		References:  []string{"https://partner.example.com/profile"},
	}

	e := p.BuildEntity(biz, crawl)
	require.NotNil(t, e)

	assert.Equal(t, "Acme Plumbing", e.Name)
	assert.Equal(t, "https://acme.com", e.URL)
	assert.Equal(t, "plumber", e.Category)
	assert.Equal(t, "Austin, TX", e.Location)
	assert.Equal(t, "Family-owned plumbing contractor serving the Austin metro.", e.Description)
	assert.Equal(t, []string{"https://partner.example.com/profile"}, e.References)

	assert.Equal(t, "business", e.Claims["instance_of"])
	assert.Equal(t, "https://acme.com", e.Claims["official_website"])
	assert.Equal(t, "Drain Cleaning; Water Heater Repair", e.Claims["services"])
}

func TestBuildEntity_NilCrawl(t *testing.T) {
	p := New(Config{}, nil)

	biz := &model.Business{
		Name: "Acme Plumbing",
		URL:  "https://acme.com",
	}

	e := p.BuildEntity(biz, nil)
	require.NotNil(t, e)

	assert.Equal(t, "Acme Plumbing", e.Name)
	assert.Equal(t, "https://acme.com", e.URL)
	assert.Empty(t, e.Description)
	assert.Empty(t, e.References)
	assert.NotContains(t, e.Claims, "services")
}

func TestBuildEntity_NameFallsBackToCrawlTitle(t *testing.T) {
	p := New(Config{}, nil)

	biz := &model.Business{URL: "https://acme.com"}
	crawl := &model.CrawlData{Title: "Acme Plumbing"}

	e := p.BuildEntity(biz, crawl)
	assert.Equal(t, "Acme Plumbing", e.Name)
}

func TestBuildEntity_TrimsWhitespace(t *testing.T) {
	p := New(Config{}, nil)

	biz := &model.Business{
		Name:     "  Acme Plumbing  ",
		URL:      " https://acme.com ",
		Location: " Austin, TX ",
	}

	e := p.BuildEntity(biz, nil)
	assert.Equal(t, "Acme Plumbing", e.Name)
	assert.Equal(t, "https://acme.com", e.URL)
	assert.Equal(t, "Austin, TX", e.Location)
}

func TestBuildEntity_NoURLOmitsWebsiteClaim(t *testing.T) {
	p := New(Config{}, nil)

	e := p.BuildEntity(&model.Business{Name: "Acme"}, nil)
	assert.NotContains(t, e.Claims, "official_website")
	assert.Equal(t, "business", e.Claims["instance_of"])
}

func TestBuildEntity_NilInputs(t *testing.T) {
	p := New(Config{}, nil)

	e := p.BuildEntity(nil, nil)
	require.NotNil(t, e)
	assert.Empty(t, e.Name)
	assert.Empty(t, e.URL)
}
