// README: Rate catalog rules, fare request and fare breakdown definitions.
package pricing

import (
	"strings"
	"time"

	"vitecab/internal/types"
)

type VehicleType string

const (
	VehicleEconomy4   VehicleType = "economy_4"
	VehicleEconomy5   VehicleType = "economy_5"
	VehicleVanEconomy VehicleType = "van_economy"
	VehicleVanLuxe    VehicleType = "van_luxe"
	VehicleBusiness   VehicleType = "business"
	VehicleExecutive  VehicleType = "executive"
)

var VehicleTypes = []VehicleType{
	VehicleEconomy4, VehicleEconomy5, VehicleVanEconomy,
	VehicleVanLuxe, VehicleBusiness, VehicleExecutive,
}

func (v VehicleType) Valid() bool {
	for _, t := range VehicleTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Mode string

const (
	ModeDistance Mode = "distance"
	ModeRoute    Mode = "route"
	ModeHourly   Mode = "hourly"
)

// AllVehicles marks an extra as applicable to every vehicle type.
const AllVehicles = "all"

const (
	defaultMinimumHours = 1.0
	defaultMaximumHours = 12.0
)

type DistanceRate struct {
	ID          int64       `json:"id"`
	VehicleType VehicleType `json:"vehicleType"`
	BaseFare    types.Cents `json:"baseFare"`
	PerKm       types.Cents `json:"perKm"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type RouteRate struct {
	ID           int64       `json:"id"`
	RouteName    string      `json:"routeName"`
	FromLocation string      `json:"fromLocation"`
	ToLocation   string      `json:"toLocation"`
	VehicleType  VehicleType `json:"vehicleType"`
	Price        types.Cents `json:"price"`
	IsActive     bool        `json:"isActive"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type HourlyRate struct {
	ID           int64       `json:"id"`
	VehicleType  VehicleType `json:"vehicleType"`
	PricePerHour types.Cents `json:"pricePerHour"`
	MinimumHours float64     `json:"minimumHours"`
	MaximumHours float64     `json:"maximumHours"`
	IsActive     bool        `json:"isActive"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// EffectiveHours floors the request at the minimum, then caps it at the maximum.
// Unset bounds fall back to 1 and 12 hours.
func (h HourlyRate) EffectiveHours(requested float64) float64 {
	lo, hi := h.MinimumHours, h.MaximumHours
	if lo <= 0 {
		lo = defaultMinimumHours
	}
	if hi <= 0 {
		hi = defaultMaximumHours
	}
	hours := requested
	if hours < lo {
		hours = lo
	}
	if hours > hi {
		hours = hi
	}
	return hours
}

type ExtraRate struct {
	ID    int64       `json:"id"`
	Item  string      `json:"item"`
	Price types.Cents `json:"price"`
	// ApplicableVehicleTypes is either ["all"] or an explicit subset.
	ApplicableVehicleTypes []string  `json:"applicableVehicleTypes"`
	IsActive               bool      `json:"isActive"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func (e ExtraRate) AppliesTo(v VehicleType) bool {
	for _, t := range e.ApplicableVehicleTypes {
		if t == AllVehicles || VehicleType(t) == v {
			return true
		}
	}
	return false
}

// ResolveExtra finds the first active extra whose name matches item
// (case-insensitive) and that applies to the vehicle type.
func ResolveExtra(extras []ExtraRate, item string, v VehicleType) (ExtraRate, bool) {
	for _, e := range extras {
		if !e.IsActive {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(e.Item), strings.TrimSpace(item)) && e.AppliesTo(v) {
			return e, true
		}
	}
	return ExtraRate{}, false
}

type FareRequest struct {
	VehicleType    VehicleType
	Pickup         *types.Point
	Dropoff        *types.Point
	RouteID        *int64
	IsHourly       bool
	EstimatedHours *float64
	Extras         []string
}

// hasRoute treats a zero route id as absent.
func (r FareRequest) hasRoute() bool {
	return r.RouteID != nil && *r.RouteID != 0
}

// wantsHourly needs nonzero hours. Negative hours still select hourly pricing and bill the minimum.
func (r FareRequest) wantsHourly() bool {
	return r.IsHourly && r.EstimatedHours != nil && *r.EstimatedHours != 0
}

type ExtraCharge struct {
	Item  string      `json:"item"`
	Price types.Cents `json:"price"`
}

// FareDetail carries the raw numbers used, for itemised receipts.
type FareDetail struct {
	Base       *types.Cents  `json:"base,omitempty"`
	PerKm      *types.Cents  `json:"perKm,omitempty"`
	Distance   *float64      `json:"distance,omitempty"`
	RoutePrice *types.Cents  `json:"routePrice,omitempty"`
	HourlyRate *types.Cents  `json:"hourlyRate,omitempty"`
	Hours      *float64      `json:"hours,omitempty"`
	Extras     []ExtraCharge `json:"extras"`
}

type FareBreakdown struct {
	BaseFare        types.Cents `json:"baseFare"`
	DistanceFare    types.Cents `json:"distanceFare"`
	TimeFare        types.Cents `json:"timeFare"`
	ExtrasFare      types.Cents `json:"extrasFare"`
	TotalFare       types.Cents `json:"totalFare"`
	CalculationType Mode        `json:"calculationType"`
	Breakdown       FareDetail  `json:"breakdown"`
}

// DistanceKm is the measured distance for distance-mode fares, zero otherwise.
func (b *FareBreakdown) DistanceKm() float64 {
	if b.Breakdown.Distance == nil {
		return 0
	}
	return *b.Breakdown.Distance
}

type VehiclePricing struct {
	Distance []DistanceRate `json:"distance"`
	Hourly   []HourlyRate   `json:"hourly"`
}

// Patches for admin maintenance; nil fields are left unchanged.

type DistanceRatePatch struct {
	BaseFare *types.Cents `json:"baseFare"`
	PerKm    *types.Cents `json:"perKm"`
}

type RouteRatePatch struct {
	RouteName    *string      `json:"routeName"`
	FromLocation *string      `json:"fromLocation"`
	ToLocation   *string      `json:"toLocation"`
	Price        *types.Cents `json:"price"`
	IsActive     *bool        `json:"isActive"`
}

type HourlyRatePatch struct {
	PricePerHour *types.Cents `json:"pricePerHour"`
	MinimumHours *float64     `json:"minimumHours"`
	MaximumHours *float64     `json:"maximumHours"`
	IsActive     *bool        `json:"isActive"`
}

type ExtraRatePatch struct {
	Item                   *string      `json:"item"`
	Price                  *types.Cents `json:"price"`
	ApplicableVehicleTypes []string     `json:"applicableVehicleTypes"`
	IsActive               *bool        `json:"isActive"`
}

// DeletedRate is the payload of a rate deletion event.
type DeletedRate struct {
	ID int64 `json:"id"`
}

func negative(c *types.Cents) bool {
	return c != nil && *c < 0
}
