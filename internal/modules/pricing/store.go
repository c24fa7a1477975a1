// README: Pricing store backed by PostgreSQL; amounts travel as cents.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vitecab/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const (
	distanceCols = `id, vehicle_type, (base_fare * 100)::bigint, (per_km * 100)::bigint, updated_at`
	routeCols    = `id, route_name, from_location, to_location, vehicle_type, (price * 100)::bigint, is_active, updated_at`
	hourlyCols   = `id, vehicle_type, (price_per_hour * 100)::bigint, minimum_hours, maximum_hours, is_active, updated_at`
	extraCols    = `id, item, (price * 100)::bigint, applicable_vehicle_types, is_active, updated_at`
)

func (s *Store) DistanceRate(ctx context.Context, vt VehicleType) (*DistanceRate, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+distanceCols+`
        FROM fare_distance
        WHERE vehicle_type = $1
        ORDER BY id
        LIMIT 1`, string(vt))
	return scanDistanceRate(row)
}

func (s *Store) RouteRate(ctx context.Context, routeID int64, vt VehicleType) (*RouteRate, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+routeCols+`
        FROM fare_routes
        WHERE id = $1 AND vehicle_type = $2 AND is_active`, routeID, string(vt))
	return scanRouteRate(row)
}

func (s *Store) HourlyRate(ctx context.Context, vt VehicleType) (*HourlyRate, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+hourlyCols+`
        FROM fare_hourly
        WHERE vehicle_type = $1 AND is_active
        ORDER BY id
        LIMIT 1`, string(vt))
	return scanHourlyRate(row)
}

func (s *Store) ActiveExtras(ctx context.Context) ([]ExtraRate, error) {
	return s.queryExtras(ctx, `SELECT `+extraCols+` FROM fare_extras WHERE is_active ORDER BY id`)
}

func (s *Store) ListExtraRates(ctx context.Context) ([]ExtraRate, error) {
	return s.queryExtras(ctx, `SELECT `+extraCols+` FROM fare_extras ORDER BY id`)
}

func (s *Store) ListDistanceRates(ctx context.Context) ([]DistanceRate, error) {
	rows, err := s.db.Query(ctx, `SELECT `+distanceCols+` FROM fare_distance ORDER BY vehicle_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DistanceRate{}
	for rows.Next() {
		r, err := scanDistanceRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) ListHourlyRates(ctx context.Context, activeOnly bool) ([]HourlyRate, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+hourlyCols+`
        FROM fare_hourly
        WHERE NOT $1 OR is_active
        ORDER BY vehicle_type, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []HourlyRate{}
	for rows.Next() {
		r, err := scanHourlyRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListRouteRates filters by vehicle type unless vt is empty.
func (s *Store) ListRouteRates(ctx context.Context, vt VehicleType, activeOnly bool) ([]RouteRate, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+routeCols+`
        FROM fare_routes
        WHERE ($1 = '' OR vehicle_type = $1)
          AND (NOT $2 OR is_active)
        ORDER BY id`, string(vt), activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RouteRate{}
	for rows.Next() {
		r, err := scanRouteRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDistanceRate(ctx context.Context, id int64, p DistanceRatePatch) (*DistanceRate, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE fare_distance
        SET base_fare = COALESCE($2::bigint / 100.0, base_fare),
            per_km = COALESCE($3::bigint / 100.0, per_km),
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+distanceCols,
		id, centsPtr(p.BaseFare), centsPtr(p.PerKm),
	)
	return scanDistanceRate(row)
}

func (s *Store) UpdateHourlyRate(ctx context.Context, id int64, p HourlyRatePatch) (*HourlyRate, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE fare_hourly
        SET price_per_hour = COALESCE($2::bigint / 100.0, price_per_hour),
            minimum_hours = COALESCE($3, minimum_hours),
            maximum_hours = COALESCE($4, maximum_hours),
            is_active = COALESCE($5, is_active),
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+hourlyCols,
		id, centsPtr(p.PricePerHour), p.MinimumHours, p.MaximumHours, p.IsActive,
	)
	return scanHourlyRate(row)
}

func (s *Store) UpdateRouteRate(ctx context.Context, id int64, p RouteRatePatch) (*RouteRate, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE fare_routes
        SET route_name = COALESCE($2, route_name),
            from_location = COALESCE($3, from_location),
            to_location = COALESCE($4, to_location),
            price = COALESCE($5::bigint / 100.0, price),
            is_active = COALESCE($6, is_active),
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+routeCols,
		id, p.RouteName, p.FromLocation, p.ToLocation, centsPtr(p.Price), p.IsActive,
	)
	return created(scanRouteRate(row))
}

func (s *Store) UpdateExtraRate(ctx context.Context, id int64, p ExtraRatePatch) (*ExtraRate, error) {
	var applicable []string
	if len(p.ApplicableVehicleTypes) > 0 {
		applicable = p.ApplicableVehicleTypes
	}
	row := s.db.QueryRow(ctx, `
        UPDATE fare_extras
        SET item = COALESCE($2, item),
            price = COALESCE($3::bigint / 100.0, price),
            applicable_vehicle_types = COALESCE($4::text[], applicable_vehicle_types),
            is_active = COALESCE($5, is_active),
            updated_at = NOW()
        WHERE id = $1
        RETURNING `+extraCols,
		id, p.Item, centsPtr(p.Price), applicable, p.IsActive,
	)
	return created(scanExtraRate(row))
}

func (s *Store) CreateDistanceRate(ctx context.Context, r DistanceRate) (*DistanceRate, error) {
	row := s.db.QueryRow(ctx, `
        INSERT INTO fare_distance (vehicle_type, base_fare, per_km)
        VALUES ($1, $2::bigint / 100.0, $3::bigint / 100.0)
        RETURNING `+distanceCols,
		string(r.VehicleType), int64(r.BaseFare), int64(r.PerKm),
	)
	return created(scanDistanceRate(row))
}

func (s *Store) CreateHourlyRate(ctx context.Context, r HourlyRate) (*HourlyRate, error) {
	row := s.db.QueryRow(ctx, `
        INSERT INTO fare_hourly (vehicle_type, price_per_hour, minimum_hours, maximum_hours, is_active)
        VALUES ($1, $2::bigint / 100.0, $3, $4, $5)
        RETURNING `+hourlyCols,
		string(r.VehicleType), int64(r.PricePerHour), r.MinimumHours, r.MaximumHours, r.IsActive,
	)
	return created(scanHourlyRate(row))
}

func (s *Store) CreateRouteRate(ctx context.Context, r RouteRate) (*RouteRate, error) {
	row := s.db.QueryRow(ctx, `
        INSERT INTO fare_routes (route_name, from_location, to_location, vehicle_type, price, is_active)
        VALUES ($1, $2, $3, $4, $5::bigint / 100.0, $6)
        RETURNING `+routeCols,
		r.RouteName, r.FromLocation, r.ToLocation, string(r.VehicleType), int64(r.Price), r.IsActive,
	)
	return created(scanRouteRate(row))
}

func (s *Store) CreateExtraRate(ctx context.Context, r ExtraRate) (*ExtraRate, error) {
	row := s.db.QueryRow(ctx, `
        INSERT INTO fare_extras (item, price, applicable_vehicle_types, is_active)
        VALUES ($1, $2::bigint / 100.0, $3::text[], $4)
        RETURNING `+extraCols,
		r.Item, int64(r.Price), r.ApplicableVehicleTypes, r.IsActive,
	)
	return created(scanExtraRate(row))
}

func (s *Store) DeleteDistanceRate(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, `DELETE FROM fare_distance WHERE id = $1`, id)
}

func (s *Store) DeleteHourlyRate(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, `DELETE FROM fare_hourly WHERE id = $1`, id)
}

func (s *Store) DeleteRouteRate(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, `DELETE FROM fare_routes WHERE id = $1`, id)
}

func (s *Store) DeleteExtraRate(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, `DELETE FROM fare_extras WHERE id = $1`, id)
}

func (s *Store) deleteRow(ctx context.Context, sql string, id int64) error {
	tag, err := s.db.Exec(ctx, sql, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryExtras(ctx context.Context, sql string) ([]ExtraRate, error) {
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExtraRate{}
	for rows.Next() {
		r, err := scanExtraRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanDistanceRate(row pgx.Row) (*DistanceRate, error) {
	var r DistanceRate
	var vt string
	var base, perKm int64
	if err := row.Scan(&r.ID, &vt, &base, &perKm, &r.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	r.VehicleType = VehicleType(vt)
	r.BaseFare, r.PerKm = types.Cents(base), types.Cents(perKm)
	return &r, nil
}

func scanRouteRate(row pgx.Row) (*RouteRate, error) {
	var r RouteRate
	var vt string
	var price int64
	if err := row.Scan(&r.ID, &r.RouteName, &r.FromLocation, &r.ToLocation, &vt, &price, &r.IsActive, &r.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	r.VehicleType = VehicleType(vt)
	r.Price = types.Cents(price)
	return &r, nil
}

func scanHourlyRate(row pgx.Row) (*HourlyRate, error) {
	var r HourlyRate
	var vt string
	var price int64
	if err := row.Scan(&r.ID, &vt, &price, &r.MinimumHours, &r.MaximumHours, &r.IsActive, &r.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	r.VehicleType = VehicleType(vt)
	r.PricePerHour = types.Cents(price)
	return &r, nil
}

func scanExtraRate(row pgx.Row) (*ExtraRate, error) {
	var r ExtraRate
	var price int64
	if err := row.Scan(&r.ID, &r.Item, &price, &r.ApplicableVehicleTypes, &r.IsActive, &r.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	r.Price = types.Cents(price)
	return &r, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const uniqueViolation = "23505"

// created maps a unique violation on insert or rename to ErrConflict.
func created[T any](r *T, err error) (*T, error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrConflict
	}
	return r, err
}

func centsPtr(c *types.Cents) *int64 {
	if c == nil {
		return nil
	}
	n := int64(*c)
	return &n
}
