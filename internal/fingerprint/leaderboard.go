package fingerprint

import (
	"sort"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

const maxCompetitors = 10

type competitorTally struct {
	name         string
	mentionCount int
	positionSum  float64
	positionN    int
	withTarget   bool
}

// buildLeaderboard tallies the target and its competitors across
// recommendation-type results only. Competitor positions come from
// their order of appearance in each response.
func buildLeaderboard(businessName string, results []model.QueryResult) model.CompetitiveLeaderboard {
	board := model.CompetitiveLeaderboard{
		TargetBusiness: model.LeaderboardTarget{Name: businessName},
		Competitors:    []model.LeaderboardEntry{},
	}

	var targetPositionSum float64
	var targetPositionN int
	tallies := make(map[string]*competitorTally)
	var order []string

	for _, r := range results {
		if r.PromptType != model.PromptTypeRecommendation {
			continue
		}
		board.TotalRecommendationQueries++

		if r.Mentioned {
			board.TargetBusiness.MentionCount++
			if r.RankPosition != nil {
				targetPositionSum += float64(*r.RankPosition)
				targetPositionN++
			}
		}

		for i, name := range r.CompetitorMentions {
			t, seen := tallies[name]
			if !seen {
				t = &competitorTally{name: name}
				tallies[name] = t
				order = append(order, name)
			}
			t.mentionCount++
			if pos := i + 1; pos <= maxCompetitors {
				t.positionSum += float64(pos)
				t.positionN++
			}
			if r.Mentioned {
				t.withTarget = true
			}
		}
	}

	if targetPositionN > 0 {
		avg := targetPositionSum / float64(targetPositionN)
		board.TargetBusiness.AvgPosition = &avg
	}

	entries := make([]model.LeaderboardEntry, 0, len(order))
	for _, name := range order {
		t := tallies[name]
		entry := model.LeaderboardEntry{
			Name:              t.name,
			MentionCount:      t.mentionCount,
			AppearsWithTarget: t.withTarget,
		}
		if t.positionN > 0 {
			avg := t.positionSum / float64(t.positionN)
			entry.AvgPosition = &avg
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].MentionCount != entries[j].MentionCount {
			return entries[i].MentionCount > entries[j].MentionCount
		}
		pi, pj := entries[i].AvgPosition, entries[j].AvgPosition
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi < *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return entries[i].Name < entries[j].Name
	})

	if len(entries) > maxCompetitors {
		entries = entries[:maxCompetitors]
	}
	board.Competitors = entries
	return board
}
