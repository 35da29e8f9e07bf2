// Package geocode resolves coordinates to place names with the OpenStreetMap
// Nominatim reverse geocoding API.
package geocode
