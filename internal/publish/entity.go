package publish

import (
	"strings"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// BuildEntity assembles a knowledge-base entity from a business record and
// its crawl data. crawl may be nil; the entity then carries only what the
// business record itself provides. The result is pure data — nothing is
// looked up or persisted.
func (*Publisher) BuildEntity(biz *model.Business, crawl *model.CrawlData) *model.Entity {
	e := &model.Entity{
		Claims: map[string]string{"instance_of": "business"},
	}

	if biz != nil {
		e.Name = strings.TrimSpace(biz.Name)
		e.URL = strings.TrimSpace(biz.URL)
		e.Category = strings.TrimSpace(biz.Category)
		e.Location = strings.TrimSpace(biz.Location)
	}

	if crawl != nil {
		if e.Name == "" {
			e.Name = strings.TrimSpace(crawl.Title)
		}
		e.Description = strings.TrimSpace(crawl.Description)
		if len(crawl.Services) > 0 {
			e.Claims["services"] = strings.Join(crawl.Services, "; ")
		}
		e.References = append(e.References, crawl.References...)
	}

	if e.URL != "" {
		e.Claims["official_website"] = e.URL
	}

	return e
}
