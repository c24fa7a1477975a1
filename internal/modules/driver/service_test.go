package driver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vitecab/internal/modules/realtime"
	"vitecab/internal/types"
)

type memRepo struct {
	mu      sync.Mutex
	drivers map[types.ID]Driver
}

func newMemRepo() *memRepo { return &memRepo{drivers: map[types.ID]Driver{}} }

func (m *memRepo) Create(_ context.Context, d *Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.drivers {
		if existing.UserID == d.UserID {
			return ErrAlreadyExists
		}
	}
	m.drivers[d.ID] = *d
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *memRepo) GetByUser(_ context.Context, userID types.ID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.UserID == userID {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListOnline(_ context.Context) ([]Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Driver{}
	for _, d := range m.drivers {
		if d.IsOnline {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) Mutate(_ context.Context, id types.ID, fn func(d *Driver) error) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(&d); err != nil {
		return nil, err
	}
	m.drivers[id] = d
	return &d, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) Emit(topic realtime.Topic, event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(topic)+"/"+event)
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func registered(t *testing.T, svc *Service, kyc KYCStatus) *Driver {
	t.Helper()
	ctx := context.Background()
	d, err := svc.Register(ctx, "u1", Patch{VehicleType: str("business"), City: str("Paris")})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if kyc != KYCPending {
		if d, err = svc.SetKYCStatus(ctx, d.ID, kyc, "reviewed"); err != nil {
			t.Fatalf("set kyc: %v", err)
		}
	}
	return d
}

func TestRegister(t *testing.T) {
	events := &recordingEvents{}
	svc := NewService(newMemRepo(), events, nil)
	d := registered(t, svc, KYCPending)

	if d.ID == "" || d.UserID != "u1" || d.KYCStatus != KYCPending || d.ManualKYCStatus != ManualKYCNone {
		t.Fatalf("unexpected driver %+v", d)
	}
	if _, err := svc.Register(context.Background(), "u1", Patch{}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if events.count() != 1 || events.events[0] != "drivers/updated" {
		t.Fatalf("unexpected events %v", events.events)
	}
}

func TestUpdateResetsKYCAndEmits(t *testing.T) {
	events := &recordingEvents{}
	svc := NewService(newMemRepo(), events, nil)
	d := registered(t, svc, KYCApproved)
	before := events.count()

	got, err := svc.Update(context.Background(), d.ID, Patch{VehicleModel: str("Mercedes E")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.KYCStatus != KYCPending || got.VehicleModel != "Mercedes E" || got.City != "Paris" {
		t.Fatalf("unexpected updated driver %+v", got)
	}
	if events.count() != before+1 {
		t.Fatalf("expected one drivers/updated event")
	}
}

func TestUpdateValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	if _, err := svc.Update(context.Background(), "d1", Patch{}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty patch, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "missing", Patch{City: str("Lyon")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateOwn(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	ctx := context.Background()
	d := registered(t, svc, KYCApproved)

	got, err := svc.UpdateOwn(ctx, "u1", Patch{DriverSelfieURL: str("https://cdn.example/selfie.jpg")})
	if err != nil {
		t.Fatalf("update own: %v", err)
	}
	if got.ID != d.ID || got.DriverSelfieURL != "https://cdn.example/selfie.jpg" || got.KYCStatus != KYCPending {
		t.Fatalf("unexpected driver %+v", got)
	}
	if _, err := svc.UpdateOwn(ctx, "u2", Patch{City: str("Lyon")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user without profile, got %v", err)
	}
	if _, err := svc.UpdateOwn(ctx, "", Patch{City: str("Lyon")}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty user, got %v", err)
	}
}

func TestSetKYCStatusTransitions(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	ctx := context.Background()
	d := registered(t, svc, KYCApproved)

	if _, err := svc.SetKYCStatus(ctx, d.ID, KYCRejected, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected approved -> rejected to fail, got %v", err)
	}
	if _, err := svc.SetKYCStatus(ctx, d.ID, "verified", ""); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected unknown status to be a bad request, got %v", err)
	}
	got, err := svc.SetKYCStatus(ctx, d.ID, KYCPending, "re-check")
	if err != nil || got.KYCStatus != KYCPending || got.KYCNotes != "re-check" {
		t.Fatalf("expected approved -> pending, got %v %+v", err, got)
	}
}

func TestManualReviewFlow(t *testing.T) {
	events := &recordingEvents{}
	svc := NewService(newMemRepo(), events, nil)
	ctx := context.Background()
	d := registered(t, svc, KYCRejected)

	if _, err := svc.ResolveManualReview(ctx, d.ID, true, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected resolve without request to fail, got %v", err)
	}
	got, err := svc.RequestManualReview(ctx, d.ID, "")
	if err != nil || got.ManualKYCStatus != ManualKYCPending || got.ManualKYCNotes != defaultReviewNotes {
		t.Fatalf("request review: %v %+v", err, got)
	}
	if _, err := svc.RequestManualReview(ctx, d.ID, "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected duplicate request to fail, got %v", err)
	}

	got, err = svc.ResolveManualReview(ctx, d.ID, false, "blurry selfie")
	if err != nil || got.ManualKYCStatus != ManualKYCRejected || got.KYCStatus != KYCRejected {
		t.Fatalf("reject review: %v %+v", err, got)
	}
	if _, err := svc.RequestManualReview(ctx, d.ID, "new selfie"); err != nil {
		t.Fatalf("expected request after rejection to succeed: %v", err)
	}
	got, err = svc.ResolveManualReview(ctx, d.ID, true, "")
	if err != nil || got.ManualKYCStatus != ManualKYCApproved || got.KYCStatus != KYCApproved {
		t.Fatalf("approve review: %v %+v", err, got)
	}
	if got.ManualKYCNotes != "new selfie" {
		t.Fatalf("expected notes kept when none supplied, got %q", got.ManualKYCNotes)
	}
}

func TestListOnline(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	ctx := context.Background()
	d := registered(t, svc, KYCPending)
	if _, err := svc.Register(ctx, "u2", Patch{}); err != nil {
		t.Fatalf("register second driver: %v", err)
	}
	on := true
	if _, err := svc.Update(ctx, d.ID, Patch{IsOnline: &on}); err != nil {
		t.Fatalf("go online: %v", err)
	}
	online, err := svc.ListOnline(ctx)
	if err != nil || len(online) != 1 || online[0].ID != d.ID {
		t.Fatalf("expected one online driver, got %v (%d)", err, len(online))
	}
}
