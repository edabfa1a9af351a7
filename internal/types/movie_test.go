//nolint:revive // types is a standard Go package name pattern
package types

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "full date", input: `"1994-06-23"`, want: "1994-06-23"},
		{name: "empty string from provider", input: `""`, want: ""},
		{name: "null", input: `null`, want: ""},
		{name: "garbage", input: `"23/06/1994"`, wantErr: true},
		{name: "number", input: `1994`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestDate_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewDate(1999, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, `"1999-03-31"`, string(data))

	data, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))
}

func TestMovie_DecodeProviderPayload(t *testing.T) {
	payload := `{
		"id": 862,
		"imdb_id": "tt0114709",
		"title": "Toy Story",
		"release_date": "1995-10-30",
		"runtime": 81,
		"poster_path": null,
		"belongs_to_collection": {"id": 10194, "name": "Toy Story Collection", "poster_path": null, "backdrop_path": null},
		"genres": [{"id": 16, "name": "Animation"}],
		"production_companies": [{"id": 3, "logo_path": "/x.png", "name": "Pixar", "origin_country": "US"}],
		"production_countries": [{"iso_3166_1": "US", "name": "United States of America"}],
		"spoken_languages": [{"english_name": "English", "iso_639_1": "en", "name": "English"}]
	}`

	var m Movie
	require.NoError(t, json.Unmarshal([]byte(payload), &m))

	assert.Equal(t, 862, m.ID)
	assert.Equal(t, "Toy Story", m.Title)
	assert.Equal(t, 1995, m.ReleaseYear())
	require.NotNil(t, m.Runtime)
	assert.Equal(t, 81, *m.Runtime)
	assert.Empty(t, m.PosterPath)
	require.NotNil(t, m.BelongsToCollection)
	assert.Equal(t, "Toy Story Collection", m.BelongsToCollection.Name)
	assert.Len(t, m.Genres, 1)
	assert.Equal(t, "US", m.ProductionCountries[0].ISO3166_1)
	assert.Nil(t, m.LastUpdated)
}

func TestRecommendation_FlattensMovie(t *testing.T) {
	rec := NewRecommendation(ResolvedItem{
		Record: Movie{ID: 1, Title: "Heat"},
		Reason: "tense heist",
		Rank:   3,
	})

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Heat", decoded["title"])
	assert.Equal(t, "tense heist", decoded["reason"])
	assert.EqualValues(t, 3, decoded["rank"])
	assert.NotContains(t, decoded, "last_updated")
}

func TestNewCandidate_TrimsTitle(t *testing.T) {
	year := 1990
	c := NewCandidate(Suggestion{Title: "  Ghost ", Year: &year, Reason: "romance"}, 2)
	assert.Equal(t, "Ghost", c.Title)
	assert.Equal(t, 2, c.Rank)
	assert.Equal(t, &year, c.Year)
}

func TestRecommendationRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"valid", "feel-good movies from the 90s", false},
		{"empty", "", true},
		{"blank", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := RecommendationRequest{Query: tt.query}
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request ProviderRequest
		wantErr bool
	}{
		{"valid", ProviderRequest{MovieID: 42, Region: "DE"}, false},
		{"lowercase normalized", ProviderRequest{MovieID: 42, Region: " de "}, false},
		{"missing region", ProviderRequest{MovieID: 42}, true},
		{"blank region", ProviderRequest{MovieID: 42, Region: "  "}, true},
		{"long region", ProviderRequest{MovieID: 42, Region: "DEU"}, true},
		{"missing movie", ProviderRequest{Region: "US"}, true},
		{"negative movie", ProviderRequest{MovieID: -1, Region: "US"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.request
			req.Normalize()
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
