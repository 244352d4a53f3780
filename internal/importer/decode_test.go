package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcatalog/internal/schema"
)

var titlesHeader = []string{
	"show_id", "type", "title", "director", "cast", "country",
	"date_added", "release_year", "rating", "duration", "listed_in", "description",
}

func TestRowDecoder_Decode(t *testing.T) {
	d, err := NewRowDecoder(schema.Shows(), titlesHeader)
	require.NoError(t, err)

	got := d.Decode([]string{
		"s1", "Movie", "Dick Johnson Is Dead", "Kirsten Johnson", "", "United States",
		"September 25, 2021", "2020", "PG-13", "90 min", "Documentaries", "A filmmaker stages her father's death.",
	})
	assert.Equal(t, map[string]any{
		"show_id":      "s1",
		"type":         "Movie",
		"title":        "Dick Johnson Is Dead",
		"director":     []string{"Kirsten Johnson"},
		"cast":         []string{},
		"country":      []string{"United States"},
		"date_added":   "2021-09-25",
		"release_year": "2020",
		"rating":       "PG-13",
		"duration":     "90 min",
		"listed_in":    []string{"Documentaries"},
		"description":  "A filmmaker stages her father's death.",
	}, got)
}

func TestRowDecoder_SplitsAndTrimsLists(t *testing.T) {
	d, err := NewRowDecoder(schema.Shows(), []string{"show_id", "cast", "rating"})
	require.NoError(t, err)

	got := d.Decode([]string{" s2 ", "Ama Qamata,  Khosi Ngema, ,Gail Mabalane", "  "})
	assert.Equal(t, map[string]any{
		"show_id": "s2",
		"cast":    []string{"Ama Qamata", "Khosi Ngema", "Gail Mabalane"},
	}, got)
}

func TestRowDecoder_HeaderHandling(t *testing.T) {
	reg := schema.Shows()

	d, err := NewRowDecoder(reg, []string{"\ufeffShow ID", "Release Year", "extra"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"show_id": "s9", "release_year": "1999"}, d.Decode([]string{"s9", "1999", "ignored"}))

	_, err = NewRowDecoder(reg, []string{"title", "type"})
	assert.ErrorContains(t, err, "show_id")

	_, err = NewRowDecoder(reg, []string{"show_id", "title", "Title"})
	assert.ErrorContains(t, err, "more than once")
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2021-09-25", normalizeDate("September 25, 2021"))
	assert.Equal(t, "2021-09-25", normalizeDate("2021-09-25"))
	assert.Equal(t, "25/09/2021", normalizeDate("25/09/2021"))
}
