package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/version"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// DefaultTimeout bounds one lookup.
const DefaultTimeout = 5 * time.Second

var (
	// errNoAddress is returned when Nominatim has no address for the point.
	errNoAddress = errors.New("no address for point")
	// errLookupStatus is returned for non-2xx responses.
	errLookupStatus = errors.New("reverse lookup failed")
)

// address is the subset of the Nominatim address block used for place names.
type address struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	State   string `json:"state"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// reverseResponse is the Nominatim /reverse response.
type reverseResponse struct {
	DisplayName string  `json:"display_name"`
	Address     address `json:"address"`
}

// Nominatim is a reverse geocoder backed by Nominatim.
type Nominatim struct {
	// client is the configured HTTP client.
	client *resty.Client
}

// NewNominatim creates a geocoder for baseURL, or the public endpoint when empty.
func NewNominatim(baseURL string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	return &Nominatim{client: client}
}

// Reverse returns "city, state, country" for the point, omitting unknown parts.
func (n *Nominatim) Reverse(ctx context.Context, p geofence.Point) (string, error) {
	var result reverseResponse

	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":            fmt.Sprintf("%.7f", p.Lat),
			"lon":            fmt.Sprintf("%.7f", p.Lng),
			"format":         "json",
			"addressdetails": "1",
		}).
		SetResult(&result).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("reverse lookup: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", errLookupStatus, resp.Status())
	}

	return format(result)
}

// format builds the place name from the address parts.
func format(r reverseResponse) (string, error) {
	var (
		a     = r.Address
		parts []string
	)

	for _, candidates := range [][]string{
		{a.City, a.Town, a.Village},
		{a.State, a.Region},
		{a.Country},
	} {
		for _, c := range candidates {
			if c != "" {
				parts = append(parts, c)

				break
			}
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", "), nil
	}

	if r.DisplayName != "" {
		return r.DisplayName, nil
	}

	return "", errNoAddress
}
