// README: Booking handler; prices and persists a ride for the caller.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitecab/internal/http/middleware"
	"vitecab/internal/modules/booking"
	"vitecab/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, req booking.Request) (*booking.Result, error)
}

type BookingHandler struct {
	bookings BookingService
}

func NewBookingHandler(bookings BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Create books for the caller. Only admins may book on behalf of another customer.
func (h *BookingHandler) Create(c *gin.Context) {
	var req booking.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	uid := middleware.CallerUID(c)
	if req.CustomerID == "" {
		req.CustomerID = types.ID(uid)
	}
	if string(req.CustomerID) != uid && !middleware.IsAdmin(c) {
		writeError(c, http.StatusForbidden, "cannot book for another customer")
		return
	}
	out, err := h.bookings.Create(c.Request.Context(), req)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, out)
}
