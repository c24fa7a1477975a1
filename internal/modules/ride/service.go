// README: Ride service; atomic state transitions with events emitted after persistence.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vitecab/internal/logger"
	"vitecab/internal/modules/realtime"
	"vitecab/internal/types"
)

var (
	ErrNotFound     = errors.New("ride not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrBadRequest   = errors.New("bad request")
	ErrSameDriver   = fmt.Errorf("%w: ride is already assigned to that driver", ErrBadRequest)

	// errNotApplied means the conditional update matched no row.
	errNotApplied = errors.New("transition not applied")
)

type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	List(ctx context.Context) ([]Ride, error)
	ListByCustomer(ctx context.Context, customerID types.ID) ([]Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error)
	ListByStatus(ctx context.Context, status Status) ([]Ride, error)
	Assign(ctx context.Context, id, driverID types.ID, at time.Time) (*Ride, error)
	// Unassign and Transfer also return the driver the ride had before the update.
	Unassign(ctx context.Context, id types.ID) (*Ride, types.ID, error)
	Cancel(ctx context.Context, id types.ID, reason *string, at time.Time) (*Ride, error)
	Complete(ctx context.Context, id types.ID, at time.Time) (*Ride, error)
	Transfer(ctx context.Context, id, toDriverID types.ID) (*Ride, types.ID, error)
}

type Events interface {
	Emit(topic realtime.Topic, event string, data any)
}

type Service struct {
	repo   Repository
	events Events
	log    *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, events Events, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, events: events, log: log, now: time.Now}
}

type CreateCommand struct {
	CustomerID        types.ID
	PickupLocation    string
	DropoffLocation   string
	PickupCoords      *types.Point
	DropoffCoords     *types.Point
	VehicleType       string
	RideType          string
	RouteID           *int64
	IsHourly          bool
	EstimatedHours    *float64
	Extras            []string
	Fare              string
	BaseFare          string
	Distance          string
	EstimatedDuration int
	ScheduledTime     *time.Time
	PaymentMethod     string
}

type AssignCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CancelCommand struct {
	RideID types.ID
	Reason string
}

type TransferCommand struct {
	RideID     types.ID
	ToDriverID types.ID
}

// Create persists a new ride. Status is always pending regardless of input.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.CustomerID == "" || strings.TrimSpace(cmd.PickupLocation) == "" ||
		strings.TrimSpace(cmd.DropoffLocation) == "" || cmd.VehicleType == "" {
		return nil, ErrBadRequest
	}
	now := s.now().UTC()
	r := &Ride{
		ID:                types.NewID(),
		CustomerID:        cmd.CustomerID,
		PickupLocation:    cmd.PickupLocation,
		DropoffLocation:   cmd.DropoffLocation,
		PickupCoords:      cmd.PickupCoords,
		DropoffCoords:     cmd.DropoffCoords,
		VehicleType:       cmd.VehicleType,
		RideType:          cmd.RideType,
		RouteID:           cmd.RouteID,
		IsHourly:          cmd.IsHourly,
		EstimatedHours:    cmd.EstimatedHours,
		Extras:            cmd.Extras,
		Fare:              orZero(cmd.Fare),
		BaseFare:          orZero(cmd.BaseFare),
		Distance:          orZero(cmd.Distance),
		EstimatedDuration: cmd.EstimatedDuration,
		Status:            StatusPending,
		RequestTime:       now,
		IsScheduled:       cmd.ScheduledTime != nil,
		ScheduledTime:     cmd.ScheduledTime,
		PaymentMethod:     cmd.PaymentMethod,
		PaymentStatus:     PaymentPending,
		UpdatedAt:         now,
	}
	if r.RideType == "" {
		r.RideType = RideTypeStandard
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = DefaultPaymentMethod
	}
	if r.Extras == nil {
		r.Extras = []string{}
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.emit(realtime.TopicRides, "created", r)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.repo.Get(ctx, id)
}

// List returns every ride, newest first.
func (s *Service) List(ctx context.Context) ([]Ride, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID types.ID) ([]Ride, error) {
	if customerID == "" {
		return nil, ErrBadRequest
	}
	return s.repo.ListByCustomer(ctx, customerID)
}

// ListByDriver returns the driver's rides, newest first.
func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	return s.repo.ListByDriver(ctx, driverID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Ride, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, status)
	}
	return s.repo.ListByStatus(ctx, status)
}

func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Ride, error) {
	if cmd.RideID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	r, err := s.repo.Assign(ctx, cmd.RideID, cmd.DriverID, s.now().UTC())
	if err != nil {
		return nil, s.classify(ctx, cmd.RideID, err)
	}
	s.emit(realtime.TopicRides, "assigned", r)
	s.emit(realtime.TopicDrivers, "assigned", DriverAssignment{RideID: r.ID, DriverID: cmd.DriverID})
	return r, nil
}

func (s *Service) Unassign(ctx context.Context, rideID types.ID) (*Ride, error) {
	if rideID == "" {
		return nil, ErrBadRequest
	}
	r, prev, err := s.repo.Unassign(ctx, rideID)
	if err != nil {
		return nil, s.classify(ctx, rideID, err)
	}
	s.emit(realtime.TopicRides, "unassigned", r)
	s.emit(realtime.TopicDrivers, "unassigned", DriverAssignment{RideID: r.ID, DriverID: prev})
	return r, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	if cmd.RideID == "" {
		return nil, ErrBadRequest
	}
	var reason *string
	if v := strings.TrimSpace(cmd.Reason); v != "" {
		reason = &v
	}
	r, err := s.repo.Cancel(ctx, cmd.RideID, reason, s.now().UTC())
	if err != nil {
		return nil, s.classify(ctx, cmd.RideID, err)
	}
	s.emit(realtime.TopicRides, "cancelled", r)
	return r, nil
}

func (s *Service) Complete(ctx context.Context, rideID types.ID) (*Ride, error) {
	if rideID == "" {
		return nil, ErrBadRequest
	}
	r, err := s.repo.Complete(ctx, rideID, s.now().UTC())
	if err != nil {
		return nil, s.classify(ctx, rideID, err)
	}
	s.emit(realtime.TopicRides, "completed", r)
	return r, nil
}

// Transfer moves an assigned ride to another driver; status stays assigned.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) (*Ride, error) {
	if cmd.RideID == "" || cmd.ToDriverID == "" {
		return nil, ErrBadRequest
	}
	r, from, err := s.repo.Transfer(ctx, cmd.RideID, cmd.ToDriverID)
	if err != nil {
		if errors.Is(err, errNotApplied) {
			if cur, gerr := s.repo.Get(ctx, cmd.RideID); gerr == nil && cur.Status == StatusAssigned &&
				cur.DriverID != nil && *cur.DriverID == cmd.ToDriverID {
				return nil, ErrSameDriver
			}
		}
		return nil, s.classify(ctx, cmd.RideID, err)
	}
	s.emit(realtime.TopicRides, "reassigned", r)
	s.emit(realtime.TopicDrivers, "transferred", DriverTransfer{RideID: r.ID, FromDriverID: from, ToDriverID: cmd.ToDriverID})
	return r, nil
}

// classify turns a missed conditional update into not-found or invalid-state.
func (s *Service) classify(ctx context.Context, id types.ID, err error) error {
	if !errors.Is(err, errNotApplied) {
		return err
	}
	cur, gerr := s.repo.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	return fmt.Errorf("%w: ride is %s", ErrInvalidState, cur.Status)
}

func (s *Service) emit(topic realtime.Topic, event string, data any) {
	if s.events == nil {
		return
	}
	s.events.Emit(topic, event, data)
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
