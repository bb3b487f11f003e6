package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func TestBuildWorkbook(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	biz, err := st.CreateBusiness(ctx, model.Business{
		Name:     "Acme Plumbing",
		URL:      "https://acme-plumbing.com",
		Category: "plumbing",
		Tier:     model.TierGrowth,
	})
	require.NoError(t, err)

	_, err = st.CreateRun(ctx, biz.URL, biz.ID, "manual")
	require.NoError(t, err)

	pos := 2.0
	_, err = st.CreateFingerprint(ctx, &model.FingerprintAnalysis{
		BusinessID:        biz.ID,
		BusinessName:      biz.Name,
		VisibilityScore:   68,
		MentionRate:       0.5,
		TotalQueries:      6,
		SuccessfulQueries: 6,
		TotalTokens:       720,
		Leaderboard: model.CompetitiveLeaderboard{
			TargetBusiness: model.LeaderboardTarget{Name: biz.Name, MentionCount: 3},
			Competitors: []model.LeaderboardEntry{
				{Name: "Rival Rooter", MentionCount: 4, AvgPosition: &pos, AppearsWithTarget: true},
				{Name: "Drain Kings", MentionCount: 1},
			},
		},
	})
	require.NoError(t, err)

	wb, rows, err := buildWorkbook(ctx, st, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	for _, name := range []string{"Businesses", "Runs", "Fingerprints", "Leaderboard"} {
		require.Contains(t, wb.Sheet, name)
	}

	// Header plus one data row each.
	assert.Len(t, wb.Sheet["Businesses"].Rows, 2)
	assert.Len(t, wb.Sheet["Runs"].Rows, 2)
	assert.Len(t, wb.Sheet["Fingerprints"].Rows, 2)
	// Header plus one row per competitor.
	assert.Len(t, wb.Sheet["Leaderboard"].Rows, 3)

	bizRow := wb.Sheet["Businesses"].Rows[1]
	assert.Equal(t, "Acme Plumbing", bizRow.Cells[1].Value)
	assert.Equal(t, "https://acme-plumbing.com", bizRow.Cells[2].Value)

	lbRow := wb.Sheet["Leaderboard"].Rows[1]
	assert.Equal(t, "Acme Plumbing", lbRow.Cells[0].Value)
	assert.Equal(t, "Rival Rooter", lbRow.Cells[1].Value)
}

func TestBuildWorkbookEmptyStore(t *testing.T) {
	st := newTestStore(t)

	wb, rows, err := buildWorkbook(context.Background(), st, 100)
	require.NoError(t, err)
	assert.Zero(t, rows)

	// Sheets still exist with headers only.
	require.Contains(t, wb.Sheet, "Businesses")
	assert.Len(t, wb.Sheet["Businesses"].Rows, 1)
}

func TestWriteFingerprintCSV(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	biz, err := st.CreateBusiness(ctx, model.Business{
		Name: "Acme Plumbing",
		URL:  "https://acme-plumbing.com",
		Tier: model.TierGrowth,
	})
	require.NoError(t, err)

	// A business without a fingerprint contributes no row.
	_, err = st.CreateBusiness(ctx, model.Business{Name: "Fresh", URL: "https://fresh.example.com"})
	require.NoError(t, err)

	_, err = st.CreateFingerprint(ctx, &model.FingerprintAnalysis{
		BusinessID:        biz.ID,
		BusinessName:      biz.Name,
		VisibilityScore:   68,
		MentionRate:       0.5,
		TotalQueries:      6,
		SuccessfulQueries: 6,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := writeFingerprintCSV(ctx, st, &buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "visibility_score")
	assert.Contains(t, lines[1], "Acme Plumbing")
	assert.Contains(t, lines[1], "68.0")
	assert.Contains(t, lines[1], "0.500")
}

func TestBuildWorkbookSaves(t *testing.T) {
	st := newTestStore(t)
	wb, _, err := buildWorkbook(context.Background(), st, 10)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, wb.Save(path))
}
