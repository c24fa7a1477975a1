// README: Concurrency tests for ride transitions against PostgreSQL (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"vitecab/internal/infra"
	"vitecab/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("VITECAB_TEST_DSN")
	if dsn == "" {
		t.Skip("VITECAB_TEST_DSN not set; skipping DB-backed ride tests")
	}
	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := infra.MigrationsDir()
	if err != nil {
		t.Fatalf("locate migrations: %v", err)
	}
	if err := infra.Migrate(ctx, db, dir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE rides"); err != nil {
		t.Fatalf("truncate rides: %v", err)
	}
	return NewStore(db)
}

func dbRide(t *testing.T, svc *Service) *Ride {
	t.Helper()
	hours := 2.0
	route := int64(7)
	r, err := svc.Create(context.Background(), CreateCommand{
		CustomerID:        "c_race",
		PickupLocation:    "Louvre",
		DropoffLocation:   "Opera",
		PickupCoords:      &types.Point{Lat: 48.8606, Lng: 2.3376},
		VehicleType:       "business",
		RideType:          RideTypeBusiness,
		RouteID:           &route,
		IsHourly:          true,
		EstimatedHours:    &hours,
		Extras:            []string{"child seat"},
		Fare:              "70.00",
		BaseFare:          "0.00",
		EstimatedDuration: 120,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestStoreRoundTrip(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, nil)
	r := dbRide(t, svc)

	got, err := svc.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fare != "70.00" || got.Distance != "0.00" || got.Status != StatusPending {
		t.Fatalf("unexpected stored ride fare=%s distance=%s status=%s", got.Fare, got.Distance, got.Status)
	}
	if got.PickupCoords == nil || got.DropoffCoords != nil || got.RouteID == nil || *got.RouteID != 7 {
		t.Fatalf("unexpected optional fields %+v", got)
	}
	if len(got.Extras) != 1 || got.Extras[0] != "child seat" || got.EstimatedDuration != 120 {
		t.Fatalf("unexpected extras/duration %+v", got)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	own, err := svc.ListByCustomer(context.Background(), "c_race")
	if err != nil || len(own) != 1 || own[0].ID != r.ID {
		t.Fatalf("expected the ride under its customer, got %d (%v)", len(own), err)
	}
	all, err := svc.List(context.Background())
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one ride in full listing, got %d (%v)", len(all), err)
	}
}

func TestStoreTransitions(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, nil)
	ctx := context.Background()
	r := dbRide(t, svc)

	if _, err := svc.Assign(ctx, AssignCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Transfer(ctx, TransferCommand{RideID: r.ID, ToDriverID: "d1"}); !errors.Is(err, ErrSameDriver) {
		t.Fatalf("expected ErrSameDriver, got %v", err)
	}
	moved, err := svc.Transfer(ctx, TransferCommand{RideID: r.ID, ToDriverID: "d2"})
	if err != nil || *moved.DriverID != "d2" {
		t.Fatalf("transfer: %v", err)
	}
	back, err := svc.Unassign(ctx, r.ID)
	if err != nil || back.DriverID != nil || back.StartTime != nil {
		t.Fatalf("unassign: %v %+v", err, back)
	}
	cancelled, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, Reason: "changed plans"})
	if err != nil || cancelled.EndTime == nil || *cancelled.CancellationReason != "changed plans" {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Assign(ctx, AssignCommand{RideID: r.ID, DriverID: "d3"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after cancel, got %v", err)
	}
}

func TestConcurrentAssignSameRide(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, nil)
	ctx := context.Background()
	r := dbRide(t, svc)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			_, err := svc.Assign(ctx, AssignCommand{RideID: r.ID, DriverID: did})
			errs <- err
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAssigned || got.DriverID == nil {
		t.Fatalf("unexpected final ride %+v", got)
	}
}

func TestConcurrentCompleteVsCancel(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, nil)
	ctx := context.Background()
	r := dbRide(t, svc)
	if _, err := svc.Assign(ctx, AssignCommand{RideID: r.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Complete(ctx, r.ID)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(ctx, CancelCommand{RideID: r.ID, Reason: "admin"})
		errs <- err
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one terminal transition, got %d", success)
	}
}
