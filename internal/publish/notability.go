package publish

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/pkg/google"
)

// CheckNotability decides whether a business clears the bar for a
// knowledge-base entry. The gate is reference count: a quoted web search
// for the business must surface at least MinReferences independent result
// URLs. A Places listing adds credibility to the confidence score, and
// when no search client is configured the check degrades to review volume
// on the listing alone. Collaborator outages weaken the signals rather
// than failing the check.
func (p *Publisher) CheckNotability(ctx context.Context, name, location string) (*model.NotabilityResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, eris.New("publish: business name is required for notability")
	}

	log := zap.L().With(zap.String("business", name))
	res := &model.NotabilityResult{}

	var confidence float64
	minRefs := p.cfg.MinReferences

	searchUsable := false
	if p.search != nil {
		refs, err := p.webReferences(ctx, name, location)
		switch {
		case err != nil:
			log.Warn("publish: web reference search failed", zap.Error(err))
			res.Reasons = append(res.Reasons, "web search failed")
		case len(refs) >= minRefs:
			searchUsable = true
			res.IsNotable = true
			res.References = refs
			confidence += 0.7 * min(float64(len(refs))/float64(minRefs), 1.0)
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("%d independent web references (minimum %d)", len(refs), minRefs))
		default:
			searchUsable = true
			res.References = refs
			confidence += 0.7 * float64(len(refs)) / float64(minRefs)
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("only %d of %d required web references", len(refs), minRefs))
		}
	} else {
		res.Reasons = append(res.Reasons, "web search not configured")
	}

	if p.places != nil {
		place, err := p.placeListing(ctx, name, location)
		switch {
		case err != nil:
			log.Warn("publish: places lookup failed", zap.Error(err))
			res.Reasons = append(res.Reasons, "places lookup failed")
		case place != nil:
			confidence += 0.15 + 0.15*min(float64(place.UserRatingCount)/50.0, 1.0)
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("places listing %q with %d reviews", place.DisplayName.Text, place.UserRatingCount))
			if !searchUsable && place.UserRatingCount >= minFallbackReviews {
				res.IsNotable = true
			}
		default:
			res.Reasons = append(res.Reasons, "no places listing found")
		}
	}

	res.Confidence = math.Round(confidence*100) / 100

	log.Debug("publish: notability checked",
		zap.Bool("notable", res.IsNotable),
		zap.Float64("confidence", res.Confidence),
		zap.Int("references", len(res.References)),
	)
	return res, nil
}

// BackfillLocation returns the formatted address of the business's Places
// listing, for business records that carry no location. Returns "" when no
// Places client is configured or no listing matches.
func (p *Publisher) BackfillLocation(ctx context.Context, name string) (string, error) {
	if p.places == nil {
		return "", nil
	}
	place, err := p.placeListing(ctx, strings.TrimSpace(name), "")
	if err != nil {
		return "", eris.Wrap(err, "publish: backfill location")
	}
	if place == nil {
		return "", nil
	}
	return place.FormattedAddress, nil
}

// webReferences runs a quoted-phrase search for the business and collects
// distinct result URLs, capped at maxNotabilityRefs.
func (p *Publisher) webReferences(ctx context.Context, name, location string) ([]string, error) {
	query := fmt.Sprintf("%q", name)
	if location != "" {
		query += " " + location
	}

	resp, err := p.search.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var refs []string
	for _, r := range resp.Data {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		refs = append(refs, u)
		if len(refs) >= maxNotabilityRefs {
			break
		}
	}
	return refs, nil
}

// placeListing returns the first Places result whose display name matches
// the business, or nil when nothing matches.
func (p *Publisher) placeListing(ctx context.Context, name, location string) (*google.Place, error) {
	query := name
	if location != "" {
		query += " " + location
	}

	resp, err := p.places.TextSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	for i := range resp.Places {
		if matchesName(resp.Places[i].DisplayName.Text, name) {
			return &resp.Places[i], nil
		}
	}
	return nil, nil
}

// matchesName reports whether a Places display name plausibly names the
// business: case-insensitive equality or containment either way.
func matchesName(candidate, name string) bool {
	c := strings.ToLower(strings.TrimSpace(candidate))
	n := strings.ToLower(strings.TrimSpace(name))
	if c == "" || n == "" {
		return false
	}
	return c == n || strings.Contains(c, n) || strings.Contains(n, c)
}
