// README: Driver handlers: self-service profile and review requests, admin KYC decisions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitecab/internal/http/middleware"
	"vitecab/internal/modules/driver"
	"vitecab/internal/types"
)

type DriverService interface {
	Register(ctx context.Context, userID types.ID, p driver.Patch) (*driver.Driver, error)
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	GetByUser(ctx context.Context, userID types.ID) (*driver.Driver, error)
	ListOnline(ctx context.Context) ([]driver.Driver, error)
	Update(ctx context.Context, id types.ID, p driver.Patch) (*driver.Driver, error)
	UpdateOwn(ctx context.Context, userID types.ID, p driver.Patch) (*driver.Driver, error)
	SetKYCStatus(ctx context.Context, id types.ID, status driver.KYCStatus, notes string) (*driver.Driver, error)
	RequestManualReview(ctx context.Context, id types.ID, notes string) (*driver.Driver, error)
	ResolveManualReview(ctx context.Context, id types.ID, approved bool, notes string) (*driver.Driver, error)
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(drivers DriverService) *DriverHandler {
	return &DriverHandler{drivers: drivers}
}

func (h *DriverHandler) Register(c *gin.Context) {
	var p driver.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), types.ID(middleware.CallerUID(c)), p)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) Me(c *gin.Context) {
	d, err := h.drivers.GetByUser(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d, err := h.drivers.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	if !middleware.IsAdmin(c) && string(d.UserID) != middleware.CallerUID(c) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(c, http.StatusOK, d)
}

// UpdateOwn patches the caller's own profile and documents.
func (h *DriverHandler) UpdateOwn(c *gin.Context) {
	var p driver.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.drivers.UpdateOwn(c.Request.Context(), types.ID(middleware.CallerUID(c)), p)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) ListOnline(c *gin.Context) {
	drivers, err := h.drivers.ListOnline(c.Request.Context())
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, drivers)
}

func (h *DriverHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var p driver.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.drivers.Update(c.Request.Context(), types.ID(id), p)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type kycRequest struct {
	Status driver.KYCStatus `json:"status"`
	Notes  string           `json:"notes"`
}

func (h *DriverHandler) SetKYC(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req kycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.drivers.SetKYCStatus(c.Request.Context(), types.ID(id), req.Status, req.Notes)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// RequestReview is open to the driver who owns the profile and to admins.
func (h *DriverHandler) RequestReview(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if !bindOptionalJSON(c, &req) {
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
	d, err := h.drivers.RequestManualReview(c.Request.Context(), types.ID(id), req.Notes)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type resolveRequest struct {
	Approved *bool  `json:"approved"`
	Notes    string `json:"notes"`
}

func (h *DriverHandler) ResolveReview(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Approved == nil {
		writeError(c, http.StatusBadRequest, "missing approved")
		return
	}
	d, err := h.drivers.ResolveManualReview(c.Request.Context(), types.ID(id), *req.Approved, req.Notes)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
