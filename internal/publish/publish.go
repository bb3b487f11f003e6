// Package publish implements the final stage of the pipeline: it assembles
// a knowledge-base entity from a business and its crawl data, gates the
// entity behind a notability check, and writes it to the staging or
// production knowledge base.
package publish

import (
	"context"
	"sort"
	"strings"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/pkg/google"
	"github.com/beacon-intel/aiviz-cli/pkg/jina"
	"github.com/beacon-intel/aiviz-cli/pkg/notion"
)

const (
	defaultMinReferences = 3
	// minFallbackReviews gates notability on review volume alone when no
	// web search client is configured.
	minFallbackReviews = 10
	// maxNotabilityRefs caps how many search result URLs a notability
	// check collects as references.
	maxNotabilityRefs = 10
	// maxRichTextLen is Notion's limit for a single rich_text content block.
	maxRichTextLen = 2000
)

// Config controls the notability threshold and the target databases.
type Config struct {
	StagingDatabaseID    string
	ProductionDatabaseID string
	MinReferences        int
}

// Publisher builds, vets, and writes knowledge-base entities.
type Publisher struct {
	cfg    Config
	notion notion.Client
	search jina.Client
	places google.Client
}

// Option configures optional notability signal clients.
type Option func(*Publisher)

// WithSearch wires a web search client into the notability check.
func WithSearch(c jina.Client) Option {
	return func(p *Publisher) {
		p.search = c
	}
}

// WithPlaces wires a Places client into the notability check and the
// location backfill.
func WithPlaces(c google.Client) Option {
	return func(p *Publisher) {
		p.places = c
	}
}

// New creates a Publisher writing to the given knowledge-base databases.
func New(cfg Config, nc notion.Client, opts ...Option) *Publisher {
	if cfg.MinReferences <= 0 {
		cfg.MinReferences = defaultMinReferences
	}
	p := &Publisher{
		cfg:    cfg,
		notion: nc,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishEntity writes the entity to the staging or production knowledge
// base. An existing page for the entity URL is updated in place; otherwise
// a new page is created and its page ID becomes the entity's QID. The
// returned result always reports the outcome; publish failures land in the
// Error field rather than aborting the caller.
func (p *Publisher) PublishEntity(ctx context.Context, entity *model.Entity, toProduction bool) *model.PublishResult {
	res := &model.PublishResult{Production: toProduction}

	if entity == nil || entity.Name == "" || entity.URL == "" {
		res.Error = "publish: entity requires a name and url"
		return res
	}
	if p.notion == nil {
		res.Error = "publish: no knowledge-base client configured"
		return res
	}

	dbID := p.cfg.StagingDatabaseID
	if toProduction {
		dbID = p.cfg.ProductionDatabaseID
	}
	if dbID == "" {
		res.Error = "publish: target database not configured"
		return res
	}

	log := zap.L().With(
		zap.String("entity", entity.Name),
		zap.Bool("production", toProduction),
	)

	existing, err := notion.FindPageByURL(ctx, p.notion, dbID, entity.URL)
	if err != nil {
		log.Warn("publish: entity page lookup failed", zap.Error(err))
		res.Error = resilience.SanitizeError(err)
		return res
	}

	props := entityProperties(entity)

	var page *notionapi.Page
	if existing != nil {
		page, err = p.notion.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: props,
		})
	} else {
		page, err = p.notion.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		})
	}
	if err != nil {
		log.Warn("publish: entity write failed", zap.Error(err))
		res.Error = resilience.SanitizeError(err)
		return res
	}

	res.Success = true
	res.QID = string(page.ID)
	log.Info("publish: entity published",
		zap.String("qid", res.QID),
		zap.Bool("updated", existing != nil),
	)
	return res
}

// entityProperties converts an entity to Notion page properties. Name is
// the title property and URL the url property; everything else is rich
// text so the databases need no bespoke schema.
func entityProperties(e *model.Entity) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: e.Name}},
			},
		},
		"URL": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  e.URL,
		},
	}
	if e.Description != "" {
		props["Description"] = richTextProperty(e.Description)
	}
	if e.Category != "" {
		props["Category"] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: e.Category},
		}
	}
	if e.Location != "" {
		props["Location"] = richTextProperty(e.Location)
	}
	if len(e.References) > 0 {
		props["References"] = richTextProperty(strings.Join(e.References, "\n"))
	}
	if len(e.Claims) > 0 {
		props["Claims"] = richTextProperty(claimLines(e.Claims))
	}
	return props
}

func richTextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncate(s, maxRichTextLen)}},
		},
	}
}

// claimLines renders claims as sorted "key: value" lines so the page
// property is deterministic across runs.
func claimLines(claims map[string]string) string {
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+claims[k])
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
