package crawler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "pipe separator", title: "Acme Plumbing | Trusted Since 1980", want: "Acme Plumbing"},
		{name: "dash separator", title: "Acme Plumbing - St. Louis", want: "Acme Plumbing"},
		{name: "en dash", title: "Acme Plumbing – Home", want: "Acme Plumbing"},
		{name: "generic first segment", title: "Home | Acme Plumbing", want: "Acme Plumbing"},
		{name: "welcome skipped", title: "Welcome - Acme Plumbing", want: "Acme Plumbing"},
		{name: "all generic keeps first", title: "Home", want: "Home"},
		{name: "no separator", title: "Acme Plumbing", want: "Acme Plumbing"},
		{name: "empty", title: "", want: ""},
		{name: "whitespace", title: "   ", want: ""},
		{name: "hyphenated name untouched", title: "Smith-Jones Plumbing", want: "Smith-Jones Plumbing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTitle(tt.title))
		})
	}
}

func TestCleanTitle_TruncatesLongSegments(t *testing.T) {
	long := strings.Repeat("a", 200)
	assert.Len(t, cleanTitle(long), maxTitleLen)
}

func TestFirstParagraph(t *testing.T) {
	markdown := `# Heading

![hero image](/hero.png)

[Skip to content](/main)

Acme Plumbing has provided licensed residential plumbing across the metro
area for over forty years.

More text later.
`
	got := firstParagraph(markdown)
	assert.Contains(t, got, "licensed residential plumbing")
	assert.NotContains(t, got, "Heading")
	assert.NotContains(t, got, "More text later")
}

func TestFirstParagraph_SkipsShortRuns(t *testing.T) {
	markdown := "Too short.\n\nThis sentence, on the other hand, is comfortably long enough to serve as a description."
	got := firstParagraph(markdown)
	assert.Contains(t, got, "comfortably long enough")
}

func TestFirstParagraph_FlattensInlineMarkdown(t *testing.T) {
	markdown := "We are **Acme Plumbing**, the [most trusted](https://example.com/award) plumbing contractor in the region."
	got := firstParagraph(markdown)
	assert.Equal(t, "We are Acme Plumbing, the most trusted plumbing contractor in the region.", got)
}

func TestFirstParagraph_Empty(t *testing.T) {
	assert.Empty(t, firstParagraph(""))
	assert.Empty(t, firstParagraph("# Only Headings\n## Everywhere"))
}

func TestFirstParagraph_TruncatesLongProse(t *testing.T) {
	markdown := strings.Repeat("word ", 300)
	assert.LessOrEqual(t, len(firstParagraph(markdown)), maxParagraphLen)
}

func TestServiceItems(t *testing.T) {
	markdown := `## Our Services

- Drain Cleaning
- [Water Heater Repair](/services/water-heaters)
- **Sewer Inspection**
1. Pipe Relining

## Testimonials

- "Best plumber in town" is not a service
`
	items := serviceItems(markdown)
	assert.Equal(t, []string{
		"Drain Cleaning",
		"Water Heater Repair",
		"Sewer Inspection",
		"Pipe Relining",
	}, items)
}

func TestServiceItems_HeadingVariants(t *testing.T) {
	for _, heading := range []string{
		"## Services",
		"### What We Do",
		"# Solutions",
		"## OUR SERVICES",
		"## What we offer",
	} {
		t.Run(heading, func(t *testing.T) {
			markdown := heading + "\n\n- Item One\n"
			assert.Equal(t, []string{"Item One"}, serviceItems(markdown))
		})
	}
}

func TestServiceItems_NoSection(t *testing.T) {
	markdown := "## About\n\n- Founded in 1980\n"
	assert.Empty(t, serviceItems(markdown))
}

func TestExtract_ServiceCapAndDedup(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("## Services\n\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "- Service %d\n", i)
	}
	sb.WriteString("- Service 0\n")

	data := Extract([]model.CrawledPage{{
		URL:      "https://acme.com",
		Markdown: sb.String(),
	}}, "https://acme.com")

	assert.Len(t, data.Services, maxServices)
	assert.Equal(t, "Service 0", data.Services[0])
}

func TestOutboundRefs(t *testing.T) {
	pages := []model.CrawledPage{
		{
			URL: "https://acme.com",
			Markdown: `[Internal](/about)
[Chamber](https://chamber.example.org/acme)
[Image](https://cdn.example.com/logo.png)
[Chamber dup](https://chamber.example.org/acme)
[WWW self](https://www.acme.com/contact)
[Yelp](https://yelp.example.com/biz/acme#reviews)
`,
		},
		{
			URL:      "https://acme.com/about",
			Markdown: "[BBB](https://bbb.example.org/profile/acme)",
		},
	}

	refs := outboundRefs(pages, "https://acme.com")

	assert.Equal(t, []string{
		"https://chamber.example.org/acme",
		"https://yelp.example.com/biz/acme",
		"https://bbb.example.org/profile/acme",
	}, refs)
}

func TestOutboundRefs_CapAtTwenty(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "[ref %d](https://site%d.example.com/page)\n", i, i)
	}

	refs := outboundRefs([]model.CrawledPage{{Markdown: sb.String()}}, "https://acme.com")
	assert.Len(t, refs, maxReferences)
}

func TestExtract_EmptyPages(t *testing.T) {
	data := Extract(nil, "https://acme.com")
	assert.Empty(t, data.Title)
	assert.Empty(t, data.Description)
	assert.Empty(t, data.Services)
	assert.Empty(t, data.References)
}
