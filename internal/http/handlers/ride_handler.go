// README: Ride handlers; reads for riders and drivers, admin transitions.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitecab/internal/http/middleware"
	"vitecab/internal/modules/driver"
	"vitecab/internal/modules/ride"
	"vitecab/internal/types"
)

type RideService interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	List(ctx context.Context) ([]ride.Ride, error)
	ListByCustomer(ctx context.Context, customerID types.ID) ([]ride.Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]ride.Ride, error)
	ListByStatus(ctx context.Context, status ride.Status) ([]ride.Ride, error)
	Assign(ctx context.Context, cmd ride.AssignCommand) (*ride.Ride, error)
	Unassign(ctx context.Context, rideID types.ID) (*ride.Ride, error)
	Cancel(ctx context.Context, cmd ride.CancelCommand) (*ride.Ride, error)
	Complete(ctx context.Context, rideID types.ID) (*ride.Ride, error)
	Transfer(ctx context.Context, cmd ride.TransferCommand) (*ride.Ride, error)
}

// DriverLookup resolves drivers for assignment checks and ride ownership.
type DriverLookup interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	GetByUser(ctx context.Context, userID types.ID) (*driver.Driver, error)
}

type RideHandler struct {
	rides   RideService
	drivers DriverLookup
}

func NewRideHandler(rides RideService, drivers DriverLookup) *RideHandler {
	return &RideHandler{rides: rides, drivers: drivers}
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	if !h.canView(c, r) {
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// List scopes the result by caller: admins see every ride, drivers the rides assigned to them,
// everyone else the rides they booked.
func (h *RideHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	uid := types.ID(middleware.CallerUID(c))
	var (
		rides []ride.Ride
		err   error
	)
	switch middleware.CallerRole(c) {
	case middleware.RoleAdmin:
		rides, err = h.rides.List(ctx)
	case middleware.RoleDriver:
		d, derr := h.drivers.GetByUser(ctx, uid)
		if derr != nil {
			writeDriverError(c, derr)
			return
		}
		rides, err = h.rides.ListByDriver(ctx, d.ID)
	default:
		rides, err = h.rides.ListByCustomer(ctx, uid)
	}
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rides)
}

// ListByDriver is open to the driver who owns the profile and to admins.
func (h *RideHandler) ListByDriver(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if !middleware.IsAdmin(c) {
		d, err := h.drivers.Get(c.Request.Context(), types.ID(id))
		if err != nil {
			writeDriverError(c, err)
			return
		}
		if string(d.UserID) != middleware.CallerUID(c) {
			writeError(c, http.StatusForbidden, "forbidden")
			return
		}
	}
	rides, err := h.rides.ListByDriver(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rides)
}

func (h *RideHandler) ListByStatus(c *gin.Context) {
	status := ride.Status(c.Query("status"))
	if !status.Valid() {
		writeError(c, http.StatusBadRequest, "invalid status")
		return
	}
	rides, err := h.rides.ListByStatus(c.Request.Context(), status)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rides)
}

type assignRequest struct {
	DriverID types.ID `json:"driverId"`
}

func (h *RideHandler) Assign(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "missing driverId")
		return
	}
	if !h.driverExists(c, req.DriverID) {
		return
	}
	r, err := h.rides.Assign(c.Request.Context(), ride.AssignCommand{RideID: types.ID(id), DriverID: req.DriverID})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Unassign(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r, err := h.rides.Unassign(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{RideID: types.ID(id), Reason: req.Reason})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Complete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r, err := h.rides.Complete(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type transferRequest struct {
	ToDriverID types.ID `json:"toDriverId"`
}

func (h *RideHandler) Transfer(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToDriverID == "" {
		writeError(c, http.StatusBadRequest, "missing toDriverId")
		return
	}
	if !h.driverExists(c, req.ToDriverID) {
		return
	}
	r, err := h.rides.Transfer(c.Request.Context(), ride.TransferCommand{RideID: types.ID(id), ToDriverID: req.ToDriverID})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) driverExists(c *gin.Context, id types.ID) bool {
	if _, err := h.drivers.Get(c.Request.Context(), id); err != nil {
		writeDriverError(c, err)
		return false
	}
	return true
}

// canView allows admins, the customer who booked the ride and the user behind its assigned driver.
func (h *RideHandler) canView(c *gin.Context, r *ride.Ride) bool {
	uid := middleware.CallerUID(c)
	if middleware.IsAdmin(c) || string(r.CustomerID) == uid {
		return true
	}
	if r.DriverID != nil {
		d, err := h.drivers.Get(c.Request.Context(), *r.DriverID)
		if err == nil && string(d.UserID) == uid {
			return true
		}
		if err != nil && !errors.Is(err, driver.ErrNotFound) {
			writeDriverError(c, err)
			return false
		}
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return false
}
