package pricing

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"vitecab/internal/infra"
	"vitecab/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("VITECAB_TEST_DSN")
	if dsn == "" {
		t.Skip("VITECAB_TEST_DSN not set; skipping DB-backed pricing tests")
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
	if _, err := db.Exec(ctx, "DROP TABLE IF EXISTS fare_distance, fare_routes, fare_hourly, fare_extras"); err != nil {
		t.Fatalf("reset fare tables: %v", err)
	}
	if err := infra.Migrate(ctx, db, dir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewStore(db)
}

func TestStoreSeededCatalog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d, err := store.DistanceRate(ctx, VehicleEconomy4)
	if err != nil {
		t.Fatalf("distance rate: %v", err)
	}
	if d.BaseFare != 500 || d.PerKm != 150 {
		t.Fatalf("unexpected seeded rate %s/%s", d.BaseFare, d.PerKm)
	}

	h, err := store.HourlyRate(ctx, VehicleBusiness)
	if err != nil {
		t.Fatalf("hourly rate: %v", err)
	}
	if h.PricePerHour != 3000 || h.MinimumHours != 2 {
		t.Fatalf("unexpected hourly rate %+v", h)
	}

	if _, err := store.HourlyRate(ctx, VehicleEconomy4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing hourly rate, got %v", err)
	}

	extras, err := store.ActiveExtras(ctx)
	if err != nil {
		t.Fatalf("extras: %v", err)
	}
	if _, ok := ResolveExtra(extras, "Child Seat", VehicleEconomy4); !ok {
		t.Fatalf("expected child seat to resolve")
	}
	if _, ok := ResolveExtra(extras, "pet", VehicleEconomy4); ok {
		t.Fatalf("expected pet not to apply to economy_4")
	}
}

func TestStoreRouteLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	routes, err := store.ListRouteRates(ctx, VehicleVanLuxe, true)
	if err != nil || len(routes) == 0 {
		t.Fatalf("list routes: %v (%d)", err, len(routes))
	}
	id := routes[0].ID

	r, err := store.RouteRate(ctx, id, VehicleVanLuxe)
	if err != nil {
		t.Fatalf("route rate: %v", err)
	}
	if r.Price <= 0 {
		t.Fatalf("unexpected price %s", r.Price)
	}

	off := false
	price := types.Cents(17550)
	updated, err := store.UpdateRouteRate(ctx, id, RouteRatePatch{Price: &price, IsActive: &off})
	if err != nil {
		t.Fatalf("update route: %v", err)
	}
	if updated.Price != 17550 || updated.IsActive || updated.RouteName != r.RouteName {
		t.Fatalf("unexpected updated route %+v", updated)
	}
	if _, err := store.RouteRate(ctx, id, VehicleVanLuxe); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected inactive route to be not found, got %v", err)
	}
	if _, err := store.UpdateRouteRate(ctx, 999999, RouteRatePatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown route, got %v", err)
	}
}

func TestStoreUpdateExtraVehicleTypes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	all, err := store.ListExtraRates(ctx)
	if err != nil || len(all) == 0 {
		t.Fatalf("list extras: %v (%d)", err, len(all))
	}
	e, err := store.UpdateExtraRate(ctx, all[0].ID, ExtraRatePatch{ApplicableVehicleTypes: []string{"business"}})
	if err != nil {
		t.Fatalf("update extra: %v", err)
	}
	if len(e.ApplicableVehicleTypes) != 1 || e.ApplicableVehicleTypes[0] != "business" || e.Price != all[0].Price {
		t.Fatalf("unexpected updated extra %+v", e)
	}
}

func TestStoreCreateAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateDistanceRate(ctx, DistanceRate{VehicleType: VehicleEconomy4, BaseFare: 100}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate vehicle type, got %v", err)
	}
	e, err := store.CreateExtraRate(ctx, ExtraRate{Item: "water", Price: 250, ApplicableVehicleTypes: []string{AllVehicles}, IsActive: true})
	if err != nil {
		t.Fatalf("create extra: %v", err)
	}
	if e.ID == 0 || e.Price != 250 || len(e.ApplicableVehicleTypes) != 1 {
		t.Fatalf("unexpected created extra %+v", e)
	}
	r, err := store.CreateRouteRate(ctx, RouteRate{RouteName: "Orly", FromLocation: "ORY", ToLocation: "Paris", VehicleType: VehicleBusiness, Price: 6050, IsActive: true})
	if err != nil {
		t.Fatalf("create route: %v", err)
	}
	if got, err := store.RouteRate(ctx, r.ID, VehicleBusiness); err != nil || got.Price != 6050 {
		t.Fatalf("created route lookup: %+v (%v)", got, err)
	}

	if err := store.DeleteRouteRate(ctx, r.ID); err != nil {
		t.Fatalf("delete route: %v", err)
	}
	if err := store.DeleteRouteRate(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.DeleteExtraRate(ctx, e.ID); err != nil {
		t.Fatalf("delete extra: %v", err)
	}
}
