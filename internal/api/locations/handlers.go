// Package locations implements the location intelligence endpoints: forward
// geocoding and per-project location snapshots with nearby amenity counts.
package locations

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/geo"
	"github.com/grooshub/grooshub/internal/middleware"
)

// Handlers bundles the location endpoints.
type Handlers struct {
	locations *repositories.LocationRepository
	geo       *geo.Client
}

// NewHandlers creates the location handlers.
func NewHandlers(locations *repositories.LocationRepository, geoClient *geo.Client) *Handlers {
	return &Handlers{locations: locations, geo: geoClient}
}

type geocodeRequest struct {
	Address string `json:"address" binding:"required"`
}

// Geocode handles POST /api/v1/organizations/:orgId/projects/:projectId/locations/geocode
// Resolves a free-form address to candidate places without storing anything.
func (h *Handlers) Geocode(c *gin.Context) {
	var req geocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	places, err := h.geo.Geocode(c.Request.Context(), strings.TrimSpace(req.Address))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Geocoding failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"places": places})
}

type createSnapshotRequest struct {
	Label string `json:"label" binding:"required"`

	// Either an address to geocode or explicit coordinates.
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	// RadiusMeters bounds the amenity search; 0 uses the vendor default.
	RadiusMeters int `json:"radius_meters"`
}

// CreateSnapshot handles POST /api/v1/organizations/:orgId/projects/:projectId/locations
// Geocodes (if needed), fetches amenity counts, and pins the result to the
// project.
func (h *Handlers) CreateSnapshot(c *gin.Context) {
	project := middleware.CurrentProject(c)

	var req createSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var (
		displayName string
		lat, lon    float64
	)

	switch {
	case req.Latitude != nil && req.Longitude != nil:
		lat, lon = *req.Latitude, *req.Longitude
		displayName = strings.TrimSpace(req.Address)
		if displayName == "" {
			displayName = req.Label
		}
	case strings.TrimSpace(req.Address) != "":
		places, err := h.geo.Geocode(c.Request.Context(), strings.TrimSpace(req.Address))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Geocoding failed: " + err.Error()})
			return
		}
		if len(places) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Address could not be geocoded"})
			return
		}
		// Best match first.
		displayName = places[0].DisplayName
		lat, lon = places[0].Latitude, places[0].Longitude
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either address or latitude/longitude is required"})
		return
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
		return
	}

	counts, err := h.geo.AmenityCounts(c.Request.Context(), lat, lon, req.RadiusMeters)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Amenity lookup failed: " + err.Error()})
		return
	}
	amenities, err := json.Marshal(counts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode amenities"})
		return
	}

	snapshot := &models.LocationSnapshot{
		ProjectID:   project.ID,
		Label:       strings.TrimSpace(req.Label),
		DisplayName: displayName,
		Latitude:    lat,
		Longitude:   lon,
		Amenities:   amenities,
	}
	if err := h.locations.Create(c.Request.Context(), snapshot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store location snapshot"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"snapshot":  snapshot,
		"amenities": counts,
	})
}

// List handles GET /api/v1/organizations/:orgId/projects/:projectId/locations
func (h *Handlers) List(c *gin.Context) {
	project := middleware.CurrentProject(c)

	snapshots, err := h.locations.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list location snapshots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// Get handles GET /api/v1/organizations/:orgId/projects/:projectId/locations/:locationId
func (h *Handlers) Get(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	resp := gin.H{"snapshot": snapshot}
	if len(snapshot.Amenities) > 0 {
		counts := make(map[string]int)
		if err := json.Unmarshal(snapshot.Amenities, &counts); err == nil {
			resp["amenities"] = counts
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/organizations/:orgId/projects/:projectId/locations/:locationId
func (h *Handlers) Delete(c *gin.Context) {
	snapshot := h.projectSnapshot(c)
	if snapshot == nil {
		return
	}

	if err := h.locations.Delete(c.Request.Context(), snapshot.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete location snapshot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location snapshot deleted"})
}

func (h *Handlers) projectSnapshot(c *gin.Context) *models.LocationSnapshot {
	project := middleware.CurrentProject(c)

	snapshot, err := h.locations.GetByID(c.Request.Context(), c.Param("locationId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load location snapshot"})
		return nil
	}
	if snapshot == nil || snapshot.ProjectID != project.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location snapshot not found"})
		return nil
	}
	return snapshot
}
