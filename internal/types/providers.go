package types

import (
	"strings"
	"time"
)

// WatchProvider is a streaming, rental or purchase service offering a title.
type WatchProvider struct {
	ProviderID      int    `json:"provider_id"`
	ProviderName    string `json:"provider_name"`
	LogoPath        string `json:"logo_path,omitempty"`
	DisplayPriority int    `json:"display_priority"`
}

// RegionAvailability is the provider payload for a single region.
type RegionAvailability struct {
	Link     string          `json:"link,omitempty"`
	Flatrate []WatchProvider `json:"flatrate,omitempty"`
	Rent     []WatchProvider `json:"rent,omitempty"`
	Buy      []WatchProvider `json:"buy,omitempty"`
	Free     []WatchProvider `json:"free,omitempty"`
	Ads      []WatchProvider `json:"ads,omitempty"`
}

// ProviderRecord is the stored provider data for one movie, keyed by region code.
type ProviderRecord struct {
	ItemID      int
	Regions     map[string]RegionAvailability
	LastUpdated *time.Time
}

// ProviderRequest asks for the providers of one movie in one region.
type ProviderRequest struct {
	MovieID int    `json:"movie_id" validate:"required,gt=0"`
	Region  string `json:"region" validate:"required,len=2,alpha"`
}

// Normalize trims and upper-cases the region code.
func (r *ProviderRequest) Normalize() {
	r.Region = strings.ToUpper(strings.TrimSpace(r.Region))
}

// Validate validates the ProviderRequest using the validator.
func (r *ProviderRequest) Validate() error {
	return newValidator().Struct(r)
}

// ProviderResponse carries only the requested region's payload.
type ProviderResponse struct {
	ID      int                           `json:"id"`
	Results map[string]RegionAvailability `json:"results"`
}
