// README: Fare handlers: public quotes and catalog reads, admin rate maintenance.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitecab/internal/modules/pricing"
	"vitecab/internal/types"
)

type FareService interface {
	Calculate(ctx context.Context, req pricing.FareRequest) (*pricing.FareBreakdown, error)
	AvailableRoutes(ctx context.Context, vt pricing.VehicleType) ([]pricing.RouteRate, error)
	VehiclePricing(ctx context.Context) (*pricing.VehiclePricing, error)
	ListDistanceRates(ctx context.Context) ([]pricing.DistanceRate, error)
	ListHourlyRates(ctx context.Context) ([]pricing.HourlyRate, error)
	ListRouteRates(ctx context.Context) ([]pricing.RouteRate, error)
	ListExtraRates(ctx context.Context) ([]pricing.ExtraRate, error)
	UpdateDistanceRate(ctx context.Context, id int64, p pricing.DistanceRatePatch) (*pricing.DistanceRate, error)
	UpdateHourlyRate(ctx context.Context, id int64, p pricing.HourlyRatePatch) (*pricing.HourlyRate, error)
	UpdateRouteRate(ctx context.Context, id int64, p pricing.RouteRatePatch) (*pricing.RouteRate, error)
	UpdateExtraRate(ctx context.Context, id int64, p pricing.ExtraRatePatch) (*pricing.ExtraRate, error)
	CreateDistanceRate(ctx context.Context, r pricing.DistanceRate) (*pricing.DistanceRate, error)
	CreateHourlyRate(ctx context.Context, r pricing.HourlyRate) (*pricing.HourlyRate, error)
	CreateRouteRate(ctx context.Context, r pricing.RouteRate) (*pricing.RouteRate, error)
	CreateExtraRate(ctx context.Context, r pricing.ExtraRate) (*pricing.ExtraRate, error)
	DeleteDistanceRate(ctx context.Context, id int64) error
	DeleteHourlyRate(ctx context.Context, id int64) error
	DeleteRouteRate(ctx context.Context, id int64) error
	DeleteExtraRate(ctx context.Context, id int64) error
}

type FareHandler struct {
	fares FareService
}

func NewFareHandler(fares FareService) *FareHandler {
	return &FareHandler{fares: fares}
}

type calculateRequest struct {
	VehicleType    string   `json:"vehicleType"`
	PickupLat      *float64 `json:"pickupLat"`
	PickupLng      *float64 `json:"pickupLng"`
	DropoffLat     *float64 `json:"dropoffLat"`
	DropoffLng     *float64 `json:"dropoffLng"`
	RouteID        *int64   `json:"routeId"`
	IsHourly       bool     `json:"isHourly"`
	EstimatedHours *float64 `json:"estimatedHours"`
	Extras         []string `json:"extras"`
}

func point(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func (h *FareHandler) Calculate(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.fares.Calculate(c.Request.Context(), pricing.FareRequest{
		VehicleType:    pricing.VehicleType(req.VehicleType),
		Pickup:         point(req.PickupLat, req.PickupLng),
		Dropoff:        point(req.DropoffLat, req.DropoffLng),
		RouteID:        req.RouteID,
		IsHourly:       req.IsHourly,
		EstimatedHours: req.EstimatedHours,
		Extras:         req.Extras,
	})
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *FareHandler) Routes(c *gin.Context) {
	routes, err := h.fares.AvailableRoutes(c.Request.Context(), pricing.VehicleType(c.Query("vehicleType")))
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, routes)
}

func (h *FareHandler) VehiclePricing(c *gin.Context) {
	out, err := h.fares.VehiclePricing(c.Request.Context())
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *FareHandler) ListDistance(c *gin.Context) {
	respond(c, func(ctx context.Context) (any, error) { return h.fares.ListDistanceRates(ctx) })
}

func (h *FareHandler) ListHourly(c *gin.Context) {
	respond(c, func(ctx context.Context) (any, error) { return h.fares.ListHourlyRates(ctx) })
}

func (h *FareHandler) ListRoutes(c *gin.Context) {
	respond(c, func(ctx context.Context) (any, error) { return h.fares.ListRouteRates(ctx) })
}

func (h *FareHandler) ListExtras(c *gin.Context) {
	respond(c, func(ctx context.Context) (any, error) { return h.fares.ListExtraRates(ctx) })
}

func (h *FareHandler) UpdateDistance(c *gin.Context) {
	var p pricing.DistanceRatePatch
	update(c, &p, func(ctx context.Context, id int64) (any, error) { return h.fares.UpdateDistanceRate(ctx, id, p) })
}

func (h *FareHandler) UpdateHourly(c *gin.Context) {
	var p pricing.HourlyRatePatch
	update(c, &p, func(ctx context.Context, id int64) (any, error) { return h.fares.UpdateHourlyRate(ctx, id, p) })
}

func (h *FareHandler) UpdateRoute(c *gin.Context) {
	var p pricing.RouteRatePatch
	update(c, &p, func(ctx context.Context, id int64) (any, error) { return h.fares.UpdateRouteRate(ctx, id, p) })
}

func (h *FareHandler) UpdateExtra(c *gin.Context) {
	var p pricing.ExtraRatePatch
	update(c, &p, func(ctx context.Context, id int64) (any, error) { return h.fares.UpdateExtraRate(ctx, id, p) })
}

// Create handlers treat an omitted isActive as true.

func (h *FareHandler) CreateDistance(c *gin.Context) {
	var r pricing.DistanceRate
	create(c, &r, func(ctx context.Context) (any, error) { return h.fares.CreateDistanceRate(ctx, r) })
}

func (h *FareHandler) CreateHourly(c *gin.Context) {
	r := pricing.HourlyRate{IsActive: true}
	create(c, &r, func(ctx context.Context) (any, error) { return h.fares.CreateHourlyRate(ctx, r) })
}

func (h *FareHandler) CreateRoute(c *gin.Context) {
	r := pricing.RouteRate{IsActive: true}
	create(c, &r, func(ctx context.Context) (any, error) { return h.fares.CreateRouteRate(ctx, r) })
}

func (h *FareHandler) CreateExtra(c *gin.Context) {
	r := pricing.ExtraRate{IsActive: true}
	create(c, &r, func(ctx context.Context) (any, error) { return h.fares.CreateExtraRate(ctx, r) })
}

func (h *FareHandler) DeleteDistance(c *gin.Context) { remove(c, h.fares.DeleteDistanceRate) }
func (h *FareHandler) DeleteHourly(c *gin.Context)   { remove(c, h.fares.DeleteHourlyRate) }
func (h *FareHandler) DeleteRoute(c *gin.Context)    { remove(c, h.fares.DeleteRouteRate) }
func (h *FareHandler) DeleteExtra(c *gin.Context)    { remove(c, h.fares.DeleteExtraRate) }

func respond(c *gin.Context, fn func(ctx context.Context) (any, error)) {
	out, err := fn(c.Request.Context())
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

// update binds the patch into p before fn runs.
func update(c *gin.Context, p any, fn func(ctx context.Context, id int64) (any, error)) {
	id, ok := paramInt64(c)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	respond(c, func(ctx context.Context) (any, error) { return fn(ctx, id) })
}

// create binds the new rate into r before fn runs.
func create(c *gin.Context, r any, fn func(ctx context.Context) (any, error)) {
	if err := c.ShouldBindJSON(r); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := fn(c.Request.Context())
	if err != nil {
		writePricingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, out)
}

func remove(c *gin.Context, del func(ctx context.Context, id int64) error) {
	id, ok := paramInt64(c)
	if !ok {
		return
	}
	if err := del(c.Request.Context(), id); err != nil {
		writePricingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
