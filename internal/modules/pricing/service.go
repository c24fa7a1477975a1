// README: Pricing service: fare engine over the rate catalog plus admin rate maintenance.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"vitecab/internal/logger"
	"vitecab/internal/modules/location"
	"vitecab/internal/modules/realtime"
)

var (
	ErrNotFound           = errors.New("rate not found")
	ErrConflict           = errors.New("rate already exists")
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidVehicleType = errors.New("unsupported vehicle type")
	ErrInvalidRequest     = errors.New("invalid booking request: missing required location or route information")
)

// RuleMissingError reports that the rule a pricing mode needs is absent or inactive.
type RuleMissingError struct {
	Kind Mode
	Key  string
}

func (e *RuleMissingError) Error() string {
	switch e.Kind {
	case ModeRoute:
		return "route fare not found or inactive"
	case ModeHourly:
		return "hourly fare not found or inactive"
	default:
		return "distance fare not found for vehicle type: " + e.Key
	}
}

// Catalog is the read side used by the fare engine.
type Catalog interface {
	DistanceRate(ctx context.Context, vt VehicleType) (*DistanceRate, error)
	RouteRate(ctx context.Context, routeID int64, vt VehicleType) (*RouteRate, error)
	HourlyRate(ctx context.Context, vt VehicleType) (*HourlyRate, error)
	ActiveExtras(ctx context.Context) ([]ExtraRate, error)
}

type Repository interface {
	Catalog
	ListDistanceRates(ctx context.Context) ([]DistanceRate, error)
	ListHourlyRates(ctx context.Context, activeOnly bool) ([]HourlyRate, error)
	ListRouteRates(ctx context.Context, vt VehicleType, activeOnly bool) ([]RouteRate, error)
	ListExtraRates(ctx context.Context) ([]ExtraRate, error)
	UpdateDistanceRate(ctx context.Context, id int64, p DistanceRatePatch) (*DistanceRate, error)
	UpdateHourlyRate(ctx context.Context, id int64, p HourlyRatePatch) (*HourlyRate, error)
	UpdateRouteRate(ctx context.Context, id int64, p RouteRatePatch) (*RouteRate, error)
	UpdateExtraRate(ctx context.Context, id int64, p ExtraRatePatch) (*ExtraRate, error)
	CreateDistanceRate(ctx context.Context, r DistanceRate) (*DistanceRate, error)
	CreateHourlyRate(ctx context.Context, r HourlyRate) (*HourlyRate, error)
	CreateRouteRate(ctx context.Context, r RouteRate) (*RouteRate, error)
	CreateExtraRate(ctx context.Context, r ExtraRate) (*ExtraRate, error)
	DeleteDistanceRate(ctx context.Context, id int64) error
	DeleteHourlyRate(ctx context.Context, id int64) error
	DeleteRouteRate(ctx context.Context, id int64) error
	DeleteExtraRate(ctx context.Context, id int64) error
}

type Events interface {
	Emit(topic realtime.Topic, event string, data any)
}

type Service struct {
	repo    Repository
	catalog Catalog
	cache   *Cache
	events  Events
	log     *logger.Logger
}

// NewService wires the engine. cache may be nil, in which case lookups hit repo directly.
func NewService(repo Repository, cache *Cache, events Events, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{repo: repo, catalog: repo, events: events, log: log}
	if cache != nil {
		s.cache = cache
		s.catalog = cache
	}
	return s
}

// Calculate prices a request. Mode priority is route, then hourly, then distance.
func (s *Service) Calculate(ctx context.Context, req FareRequest) (*FareBreakdown, error) {
	if !req.VehicleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, req.VehicleType)
	}
	out := &FareBreakdown{Breakdown: FareDetail{Extras: []ExtraCharge{}}}

	switch {
	case req.hasRoute():
		r, err := s.catalog.RouteRate(ctx, *req.RouteID, req.VehicleType)
		if err != nil {
			return nil, lookupError(err, ModeRoute, strconv.FormatInt(*req.RouteID, 10))
		}
		price := r.Price
		out.CalculationType = ModeRoute
		out.BaseFare = price
		out.Breakdown.RoutePrice = &price

	case req.wantsHourly():
		h, err := s.catalog.HourlyRate(ctx, req.VehicleType)
		if err != nil {
			return nil, lookupError(err, ModeHourly, string(req.VehicleType))
		}
		hours := h.EffectiveHours(*req.EstimatedHours)
		rate := h.PricePerHour
		out.CalculationType = ModeHourly
		out.TimeFare = rate.Mul(hours)
		out.Breakdown.HourlyRate = &rate
		out.Breakdown.Hours = &hours

	case req.Pickup != nil && req.Dropoff != nil:
		d, err := s.catalog.DistanceRate(ctx, req.VehicleType)
		if err != nil {
			return nil, lookupError(err, ModeDistance, string(req.VehicleType))
		}
		km := location.HaversineKm(*req.Pickup, *req.Dropoff)
		base, perKm := d.BaseFare, d.PerKm
		out.CalculationType = ModeDistance
		out.BaseFare = base
		out.DistanceFare = perKm.Mul(km)
		out.Breakdown.Base = &base
		out.Breakdown.PerKm = &perKm
		out.Breakdown.Distance = &km

	default:
		return nil, ErrInvalidRequest
	}

	if len(req.Extras) > 0 {
		extras, err := s.catalog.ActiveExtras(ctx)
		if err != nil {
			return nil, fmt.Errorf("load extras: %w", err)
		}
		for _, item := range req.Extras {
			e, ok := ResolveExtra(extras, item, req.VehicleType)
			if !ok {
				s.log.WithFields(map[string]any{"item": item, "vehicle_type": req.VehicleType}).Debug("extra not resolved, skipped")
				continue
			}
			out.ExtrasFare += e.Price
			out.Breakdown.Extras = append(out.Breakdown.Extras, ExtraCharge{Item: e.Item, Price: e.Price})
		}
	}

	out.TotalFare = out.BaseFare + out.DistanceFare + out.TimeFare + out.ExtrasFare
	return out, nil
}

func lookupError(err error, kind Mode, key string) error {
	if errors.Is(err, ErrNotFound) {
		return &RuleMissingError{Kind: kind, Key: key}
	}
	return fmt.Errorf("lookup %s rate %s: %w", kind, key, err)
}

// AvailableRoutes lists active flat routes, optionally for one vehicle type.
func (s *Service) AvailableRoutes(ctx context.Context, vt VehicleType) ([]RouteRate, error) {
	if vt != "" && !vt.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, vt)
	}
	return s.repo.ListRouteRates(ctx, vt, true)
}

// VehiclePricing returns every distance rate and the active hourly rates.
func (s *Service) VehiclePricing(ctx context.Context) (*VehiclePricing, error) {
	distance, err := s.repo.ListDistanceRates(ctx)
	if err != nil {
		return nil, err
	}
	hourly, err := s.repo.ListHourlyRates(ctx, true)
	if err != nil {
		return nil, err
	}
	return &VehiclePricing{Distance: distance, Hourly: hourly}, nil
}

func (s *Service) ListDistanceRates(ctx context.Context) ([]DistanceRate, error) {
	return s.repo.ListDistanceRates(ctx)
}

func (s *Service) ListHourlyRates(ctx context.Context) ([]HourlyRate, error) {
	return s.repo.ListHourlyRates(ctx, false)
}

func (s *Service) ListRouteRates(ctx context.Context) ([]RouteRate, error) {
	return s.repo.ListRouteRates(ctx, "", false)
}

func (s *Service) ListExtraRates(ctx context.Context) ([]ExtraRate, error) {
	return s.repo.ListExtraRates(ctx)
}

func (s *Service) UpdateDistanceRate(ctx context.Context, id int64, p DistanceRatePatch) (*DistanceRate, error) {
	if negative(p.BaseFare) || negative(p.PerKm) {
		return nil, ErrBadRequest
	}
	r, err := s.repo.UpdateDistanceRate(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_distance_updated", r)
	return r, nil
}

func (s *Service) UpdateHourlyRate(ctx context.Context, id int64, p HourlyRatePatch) (*HourlyRate, error) {
	if negative(p.PricePerHour) {
		return nil, ErrBadRequest
	}
	if p.MinimumHours != nil && *p.MinimumHours < 0 || p.MaximumHours != nil && *p.MaximumHours < 0 {
		return nil, ErrBadRequest
	}
	if p.MinimumHours != nil && p.MaximumHours != nil && *p.MinimumHours > *p.MaximumHours {
		return nil, ErrBadRequest
	}
	r, err := s.repo.UpdateHourlyRate(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_hourly_updated", r)
	return r, nil
}

func (s *Service) UpdateRouteRate(ctx context.Context, id int64, p RouteRatePatch) (*RouteRate, error) {
	if negative(p.Price) {
		return nil, ErrBadRequest
	}
	r, err := s.repo.UpdateRouteRate(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_route_updated", r)
	return r, nil
}

func (s *Service) UpdateExtraRate(ctx context.Context, id int64, p ExtraRatePatch) (*ExtraRate, error) {
	if negative(p.Price) || (p.Item != nil && *p.Item == "") {
		return nil, ErrBadRequest
	}
	for _, vt := range p.ApplicableVehicleTypes {
		if vt != AllVehicles && !VehicleType(vt).Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, vt)
		}
	}
	r, err := s.repo.UpdateExtraRate(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_extra_updated", r)
	return r, nil
}

func (s *Service) CreateDistanceRate(ctx context.Context, r DistanceRate) (*DistanceRate, error) {
	if !r.VehicleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, r.VehicleType)
	}
	if r.BaseFare < 0 || r.PerKm < 0 {
		return nil, ErrBadRequest
	}
	out, err := s.repo.CreateDistanceRate(ctx, r)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_distance_created", out)
	return out, nil
}

// CreateHourlyRate fills unset bounds with 1 and 12 hours.
func (s *Service) CreateHourlyRate(ctx context.Context, r HourlyRate) (*HourlyRate, error) {
	if !r.VehicleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, r.VehicleType)
	}
	if r.MinimumHours <= 0 {
		r.MinimumHours = 1
	}
	if r.MaximumHours <= 0 {
		r.MaximumHours = 12
	}
	if r.PricePerHour < 0 || r.MinimumHours > r.MaximumHours {
		return nil, ErrBadRequest
	}
	out, err := s.repo.CreateHourlyRate(ctx, r)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_hourly_created", out)
	return out, nil
}

func (s *Service) CreateRouteRate(ctx context.Context, r RouteRate) (*RouteRate, error) {
	if !r.VehicleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, r.VehicleType)
	}
	if r.RouteName == "" || r.FromLocation == "" || r.ToLocation == "" || r.Price < 0 {
		return nil, ErrBadRequest
	}
	out, err := s.repo.CreateRouteRate(ctx, r)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_route_created", out)
	return out, nil
}

// CreateExtraRate applies the extra to every vehicle type when none are listed.
func (s *Service) CreateExtraRate(ctx context.Context, r ExtraRate) (*ExtraRate, error) {
	if r.Item == "" || r.Price < 0 {
		return nil, ErrBadRequest
	}
	if len(r.ApplicableVehicleTypes) == 0 {
		r.ApplicableVehicleTypes = []string{AllVehicles}
	}
	for _, vt := range r.ApplicableVehicleTypes {
		if vt != AllVehicles && !VehicleType(vt).Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleType, vt)
		}
	}
	out, err := s.repo.CreateExtraRate(ctx, r)
	if err != nil {
		return nil, err
	}
	s.afterRateChange(ctx, "fare_extra_created", out)
	return out, nil
}

func (s *Service) DeleteDistanceRate(ctx context.Context, id int64) error {
	return s.deleteRate(ctx, "fare_distance_deleted", id, s.repo.DeleteDistanceRate)
}

func (s *Service) DeleteHourlyRate(ctx context.Context, id int64) error {
	return s.deleteRate(ctx, "fare_hourly_deleted", id, s.repo.DeleteHourlyRate)
}

func (s *Service) DeleteRouteRate(ctx context.Context, id int64) error {
	return s.deleteRate(ctx, "fare_route_deleted", id, s.repo.DeleteRouteRate)
}

func (s *Service) DeleteExtraRate(ctx context.Context, id int64) error {
	return s.deleteRate(ctx, "fare_extra_deleted", id, s.repo.DeleteExtraRate)
}

func (s *Service) deleteRate(ctx context.Context, event string, id int64, del func(context.Context, int64) error) error {
	if id <= 0 {
		return ErrBadRequest
	}
	if err := del(ctx, id); err != nil {
		return err
	}
	s.afterRateChange(ctx, event, DeletedRate{ID: id})
	return nil
}

// afterRateChange runs once the store write has committed; neither step can fail the update.
func (s *Service) afterRateChange(ctx context.Context, event string, rule any) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.WithError(err).Warn("rate cache invalidation failed")
		}
	}
	if s.events != nil {
		s.events.Emit(realtime.TopicRates, event, rule)
	}
}
