// README: Ride aggregate, status definitions and the transition table.
package ride

import (
	"time"

	"vitecab/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const (
	RideTypeStandard = "standard"
	RideTypeBusiness = "business"

	DefaultPaymentMethod = "cash"
	PaymentPending       = "pending"
)

// Ride amounts are decimal strings with two places ("6.65").
type Ride struct {
	ID                 types.ID     `json:"id"`
	CustomerID         types.ID     `json:"customerId"`
	DriverID           *types.ID    `json:"driverId"`
	PickupLocation     string       `json:"pickupLocation"`
	DropoffLocation    string       `json:"dropoffLocation"`
	PickupCoords       *types.Point `json:"pickupCoords,omitempty"`
	DropoffCoords      *types.Point `json:"dropoffCoords,omitempty"`
	VehicleType        string       `json:"vehicleType"`
	RideType           string       `json:"rideType"`
	RouteID            *int64       `json:"routeId"`
	IsHourly           bool         `json:"isHourly"`
	EstimatedHours     *float64     `json:"estimatedHours"`
	Extras             []string     `json:"extras"`
	Fare               string       `json:"fare"`
	BaseFare           string       `json:"baseFare"`
	Distance           string       `json:"distance"`
	EstimatedDuration  int          `json:"estimatedDuration"`
	Status             Status       `json:"status"`
	RequestTime        time.Time    `json:"requestTime"`
	StartTime          *time.Time   `json:"startTime"`
	EndTime            *time.Time   `json:"endTime"`
	CancellationReason *string      `json:"cancellationReason"`
	IsScheduled        bool         `json:"isScheduled"`
	ScheduledTime      *time.Time   `json:"scheduledTime"`
	PaymentMethod      string       `json:"paymentMethod"`
	PaymentStatus      string       `json:"paymentStatus"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// AllowedTransitions represents the ride state flow as code.
// assigned -> assigned is a transfer to another driver.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusPending, StatusAssigned, StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// DriverAssignment is the drivers-topic payload for assigned/unassigned.
type DriverAssignment struct {
	RideID   types.ID `json:"rideId"`
	DriverID types.ID `json:"driverId"`
}

// DriverTransfer is the drivers-topic payload for transferred.
type DriverTransfer struct {
	RideID       types.ID `json:"rideId"`
	FromDriverID types.ID `json:"fromDriverId"`
	ToDriverID   types.ID `json:"toDriverId"`
}

// Source states each operation accepts; stores put them in the update's WHERE clause.
var (
	AssignFrom   = []Status{StatusPending}
	UnassignFrom = []Status{StatusAssigned}
	CancelFrom   = []Status{StatusPending, StatusAssigned}
	CompleteFrom = []Status{StatusAssigned}
	TransferFrom = []Status{StatusAssigned}
)
