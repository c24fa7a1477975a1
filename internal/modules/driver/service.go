// README: Driver service; profile updates, KYC decisions and manual review, each in one locked transaction.
package driver

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
	ErrNotFound      = errors.New("driver not found")
	ErrInvalidState  = errors.New("invalid kyc transition")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyExists = errors.New("driver profile already exists")
)

const defaultReviewNotes = "Manual review requested by driver"

type Repository interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	GetByUser(ctx context.Context, userID types.ID) (*Driver, error)
	ListOnline(ctx context.Context) ([]Driver, error)
	// Mutate locks the row, lets fn edit it, and persists the result atomically.
	// An error from fn aborts without writing.
	Mutate(ctx context.Context, id types.ID, fn func(d *Driver) error) (*Driver, error)
}

type Events interface {
	Emit(topic realtime.Topic, event string, data any)
}

type Service struct {
	repo   Repository
	events Events
	log    *logger.Logger
}

func NewService(repo Repository, events Events, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, events: events, log: log}
}

// Register creates the caller's driver profile from an initial patch.
func (s *Service) Register(ctx context.Context, userID types.ID, p Patch) (*Driver, error) {
	if userID == "" {
		return nil, ErrBadRequest
	}
	now := time.Now().UTC()
	d := ApplyPatch(Driver{
		UserID:          userID,
		KYCStatus:       KYCPending,
		ManualKYCStatus: ManualKYCNone,
	}, p)
	d.ID = types.NewID()
	d.CreatedAt, d.UpdatedAt = now, now
	if err := s.repo.Create(ctx, &d); err != nil {
		return nil, err
	}
	s.emit("updated", &d)
	return &d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByUser(ctx context.Context, userID types.ID) (*Driver, error) {
	if userID == "" {
		return nil, ErrBadRequest
	}
	return s.repo.GetByUser(ctx, userID)
}

func (s *Service) ListOnline(ctx context.Context) ([]Driver, error) {
	return s.repo.ListOnline(ctx)
}

// Update merges the patch; derived flags are computed from the merged view under the row lock.
func (s *Service) Update(ctx context.Context, id types.ID, p Patch) (*Driver, error) {
	if id == "" || p.Empty() {
		return nil, ErrBadRequest
	}
	d, err := s.repo.Mutate(ctx, id, func(d *Driver) error {
		*d = ApplyPatch(*d, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("updated", d)
	return d, nil
}

// UpdateOwn applies a driver's own profile or document patch to the profile owned by userID.
func (s *Service) UpdateOwn(ctx context.Context, userID types.ID, p Patch) (*Driver, error) {
	d, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, d.ID, p)
}

func (s *Service) SetKYCStatus(ctx context.Context, id types.ID, status KYCStatus, notes string) (*Driver, error) {
	if _, known := KYCTransitions[status]; !known {
		return nil, fmt.Errorf("%w: unknown kyc status %q", ErrBadRequest, status)
	}
	d, err := s.repo.Mutate(ctx, id, func(d *Driver) error {
		if !CanSetKYC(d.KYCStatus, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, d.KYCStatus, status)
		}
		d.KYCStatus = status
		d.KYCNotes = strings.TrimSpace(notes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]any{"driver_id": id, "kyc_status": status}).Info("kyc status set")
	s.emit("updated", d)
	return d, nil
}

// RequestManualReview is allowed when no review is open or the last one was rejected.
func (s *Service) RequestManualReview(ctx context.Context, id types.ID, notes string) (*Driver, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = defaultReviewNotes
	}
	d, err := s.repo.Mutate(ctx, id, func(d *Driver) error {
		if d.ManualKYCStatus != ManualKYCNone && d.ManualKYCStatus != ManualKYCRejected {
			return fmt.Errorf("%w: manual review is %s", ErrInvalidState, d.ManualKYCStatus)
		}
		d.ManualKYCStatus = ManualKYCPending
		d.ManualKYCNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("updated", d)
	return d, nil
}

// ResolveManualReview closes a pending review. Approval also approves KYC.
func (s *Service) ResolveManualReview(ctx context.Context, id types.ID, approved bool, notes string) (*Driver, error) {
	d, err := s.repo.Mutate(ctx, id, func(d *Driver) error {
		if d.ManualKYCStatus != ManualKYCPending {
			return fmt.Errorf("%w: manual review is %s", ErrInvalidState, d.ManualKYCStatus)
		}
		if approved {
			d.ManualKYCStatus = ManualKYCApproved
			d.KYCStatus = KYCApproved
		} else {
			d.ManualKYCStatus = ManualKYCRejected
		}
		if v := strings.TrimSpace(notes); v != "" {
			d.ManualKYCNotes = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit("updated", d)
	return d, nil
}

func (s *Service) emit(event string, d *Driver) {
	if s.events == nil {
		return
	}
	s.events.Emit(realtime.TopicDrivers, event, d)
}
