// README: Booking orchestrator; prices a request, then persists it as a pending ride.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"vitecab/internal/logger"
	"vitecab/internal/modules/pricing"
	"vitecab/internal/modules/ride"
	"vitecab/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Request struct {
	CustomerID      types.ID   `json:"customerId"`
	VehicleType     string     `json:"vehicleType"`
	PickupLocation  string     `json:"pickupLocation"`
	DropoffLocation string     `json:"dropoffLocation"`
	PickupLat       *float64   `json:"pickupLat"`
	PickupLng       *float64   `json:"pickupLng"`
	DropoffLat      *float64   `json:"dropoffLat"`
	DropoffLng      *float64   `json:"dropoffLng"`
	RouteID         *int64     `json:"routeId"`
	IsHourly        bool       `json:"isHourly"`
	EstimatedHours  *float64   `json:"estimatedHours"`
	Extras          []string   `json:"extras"`
	ScheduledTime   *time.Time `json:"scheduledTime"`
	PaymentMethod   string     `json:"paymentMethod"`
}

type Result struct {
	Ride          *ride.Ride             `json:"ride"`
	FareBreakdown *pricing.FareBreakdown `json:"fareBreakdown"`
}

type FareEngine interface {
	Calculate(ctx context.Context, req pricing.FareRequest) (*pricing.FareBreakdown, error)
}

type RideCreator interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
}

type Service struct {
	fares FareEngine
	rides RideCreator
	log   *logger.Logger
}

func NewService(fares FareEngine, rides RideCreator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{fares: fares, rides: rides, log: log}
}

// Create never persists a ride when pricing fails. Every error reads "booking failed: <reason>".
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, fmt.Errorf("booking failed: %w", err)
	}
	pickup := point(req.PickupLat, req.PickupLng)
	dropoff := point(req.DropoffLat, req.DropoffLng)
	if req.RouteID != nil && *req.RouteID == 0 {
		req.RouteID = nil
	}

	fare, err := s.fares.Calculate(ctx, pricing.FareRequest{
		VehicleType:    pricing.VehicleType(req.VehicleType),
		Pickup:         pickup,
		Dropoff:        dropoff,
		RouteID:        req.RouteID,
		IsHourly:       req.IsHourly,
		EstimatedHours: req.EstimatedHours,
		Extras:         req.Extras,
	})
	if err != nil {
		return nil, fmt.Errorf("booking failed: %w", err)
	}

	rideType := ride.RideTypeStandard
	if fare.CalculationType == pricing.ModeHourly {
		rideType = ride.RideTypeBusiness
	}
	r, err := s.rides.Create(ctx, ride.CreateCommand{
		CustomerID:        req.CustomerID,
		PickupLocation:    strings.TrimSpace(req.PickupLocation),
		DropoffLocation:   strings.TrimSpace(req.DropoffLocation),
		PickupCoords:      pickup,
		DropoffCoords:     dropoff,
		VehicleType:       req.VehicleType,
		RideType:          rideType,
		RouteID:           req.RouteID,
		IsHourly:          req.IsHourly,
		EstimatedHours:    req.EstimatedHours,
		Extras:            req.Extras,
		Fare:              fare.TotalFare.String(),
		BaseFare:          fare.BaseFare.String(),
		Distance:          formatKm(fare.DistanceKm()),
		EstimatedDuration: estimatedMinutes(fare),
		ScheduledTime:     req.ScheduledTime,
		PaymentMethod:     req.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("booking failed: %w", err)
	}
	s.log.WithFields(map[string]any{
		"ride_id":          r.ID,
		"customer_id":      r.CustomerID,
		"calculation_type": fare.CalculationType,
		"total_fare":       fare.TotalFare.String(),
	}).Info("booking created")
	return &Result{Ride: r, FareBreakdown: fare}, nil
}

func validate(req Request) error {
	switch {
	case req.CustomerID == "":
		return fmt.Errorf("%w: customerId is required", ErrBadRequest)
	case !pricing.VehicleType(req.VehicleType).Valid():
		return fmt.Errorf("%w: %q", pricing.ErrInvalidVehicleType, req.VehicleType)
	case strings.TrimSpace(req.PickupLocation) == "" || strings.TrimSpace(req.DropoffLocation) == "":
		return fmt.Errorf("%w: pickupLocation and dropoffLocation are required", ErrBadRequest)
	}
	return nil
}

func point(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

// estimatedMinutes is billed hours for hourly fares, otherwise two minutes per km.
func estimatedMinutes(fare *pricing.FareBreakdown) int {
	if fare.CalculationType == pricing.ModeHourly && fare.Breakdown.Hours != nil {
		return int(math.Round(*fare.Breakdown.Hours * 60))
	}
	return int(math.Round(fare.DistanceKm() * 2))
}

func formatKm(km float64) string {
	if km == 0 {
		return "0"
	}
	return strconv.FormatFloat(km, 'f', 2, 64)
}
