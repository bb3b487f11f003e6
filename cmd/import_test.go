package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

func TestParseBusinessCSV(t *testing.T) {
	csv := `name,url,category,location,tier,automation_enabled
Acme Plumbing,https://acme-plumbing.com,plumbing,"Austin, TX",growth,true
Blue Sky HVAC,https://bluesky-hvac.com,hvac,Denver,starter,false
`

	businesses, err := parseBusinessCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, businesses, 2)

	assert.Equal(t, "Acme Plumbing", businesses[0].Name)
	assert.Equal(t, "https://acme-plumbing.com", businesses[0].URL)
	assert.Equal(t, "Austin, TX", businesses[0].Location)
	assert.Equal(t, model.TierGrowth, businesses[0].Tier)
	assert.True(t, businesses[0].AutomationEnabled)

	assert.Equal(t, "Blue Sky HVAC", businesses[1].Name)
	assert.False(t, businesses[1].AutomationEnabled)
}

func TestParseBusinessCSVColumnOrderIrrelevant(t *testing.T) {
	csv := `tier,url,name
enterprise,https://acme.com,Acme
`

	businesses, err := parseBusinessCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, businesses, 1)
	assert.Equal(t, model.TierEnterprise, businesses[0].Tier)
	assert.Equal(t, "Acme", businesses[0].Name)
}

func TestParseBusinessCSVSkipsRowsWithoutURL(t *testing.T) {
	csv := `name,url
Acme,https://acme.com
No URL Here,
Other,https://other.com
`

	businesses, err := parseBusinessCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, businesses, 2)
	assert.Equal(t, "https://acme.com", businesses[0].URL)
	assert.Equal(t, "https://other.com", businesses[1].URL)
}

func TestParseBusinessCSVMissingURLColumn(t *testing.T) {
	csv := `name,category
Acme,plumbing
`

	_, err := parseBusinessCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestParseBusinessCSVBadBool(t *testing.T) {
	csv := `url,automation_enabled
https://acme.com,maybe
`

	_, err := parseBusinessCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation_enabled")
}

func TestParseBusinessCSVEmptyInput(t *testing.T) {
	businesses, err := parseBusinessCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, businesses)
}
