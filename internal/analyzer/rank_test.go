package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRank_DotAndParenForms(t *testing.T) {
	t.Parallel()

	variants := []string{"acme plumbing"}

	text := "Here are the top picks:\n1. Brightway\n2. Acme Plumbing\n3. Flowmasters"
	rank := ExtractRank(text, variants)
	require.NotNil(t, rank)
	assert.Equal(t, 2, *rank)

	text = "1) Brightway\n2) Flowmasters\n3) Acme Plumbing"
	rank = ExtractRank(text, variants)
	require.NotNil(t, rank)
	assert.Equal(t, 3, *rank)
}

func TestExtractRank_BulletedOrdinals(t *testing.T) {
	t.Parallel()

	text := "- 1. Acme Plumbing: the local favorite\n- 2. Brightway"
	rank := ExtractRank(text, []string{"acme plumbing"})
	require.NotNil(t, rank)
	assert.Equal(t, 1, *rank)
}

func TestExtractRank_NilWhenNotOnRankedLine(t *testing.T) {
	t.Parallel()

	// Mentioned in prose but never on an ordinal line.
	text := "Acme Plumbing is decent.\n1. Brightway\n2. Flowmasters"
	assert.Nil(t, ExtractRank(text, []string{"acme plumbing"}))
}

func TestExtractRank_IgnoresPositionsOutsideWindow(t *testing.T) {
	t.Parallel()

	text := "11. Acme Plumbing\n12. Brightway"
	assert.Nil(t, ExtractRank(text, []string{"acme plumbing"}))

	// "0." is not a valid position either.
	text = "0. Acme Plumbing"
	assert.Nil(t, ExtractRank(text, []string{"acme plumbing"}))
}

func TestExtractRank_FirstMatchWins(t *testing.T) {
	t.Parallel()

	text := "1. Acme Plumbing\n...\n7. Acme Plumbing again"
	rank := ExtractRank(text, []string{"acme plumbing"})
	require.NotNil(t, rank)
	assert.Equal(t, 1, *rank)
}

func TestExtractRank_EmptyVariants(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ExtractRank("1. Acme", nil))
}
