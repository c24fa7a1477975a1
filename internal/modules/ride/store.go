// README: Ride store backed by PostgreSQL; every transition is one conditional UPDATE ... RETURNING.
package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vitecab/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// rideCols assumes the rides table is aliased as r.
const rideCols = `r.id, r.customer_id, r.driver_id, r.pickup_location, r.dropoff_location,
        r.pickup_lat, r.pickup_lng, r.dropoff_lat, r.dropoff_lng,
        r.vehicle_type, r.ride_type, r.route_id, r.is_hourly, r.estimated_hours, r.extras,
        r.fare::text, r.base_fare::text, r.distance::text, r.estimated_duration, r.status,
        r.request_time, r.start_time, r.end_time, r.cancellation_reason,
        r.is_scheduled, r.scheduled_time, r.payment_method, r.payment_status, r.updated_at`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	pLat, pLng := coords(r.PickupCoords)
	dLat, dLng := coords(r.DropoffCoords)
	_, err := s.db.Exec(ctx, `
        INSERT INTO rides (
            id, customer_id, driver_id, pickup_location, dropoff_location,
            pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
            vehicle_type, ride_type, route_id, is_hourly, estimated_hours, extras,
            fare, base_fare, distance, estimated_duration, status,
            request_time, is_scheduled, scheduled_time, payment_method, payment_status, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12, $13, $14, $15,
            $16::text::numeric, $17::text::numeric, $18::text::numeric, $19, $20,
            $21, $22, $23, $24, $25, $21
        )`,
		string(r.ID), string(r.CustomerID), toStringPtr(r.DriverID), r.PickupLocation, r.DropoffLocation,
		pLat, pLng, dLat, dLng,
		r.VehicleType, r.RideType, r.RouteID, r.IsHourly, r.EstimatedHours, r.Extras,
		r.Fare, r.BaseFare, r.Distance, r.EstimatedDuration, string(r.Status),
		r.RequestTime, r.IsScheduled, r.ScheduledTime, r.PaymentMethod, r.PaymentStatus,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideCols+` FROM rides r WHERE r.id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) List(ctx context.Context) ([]Ride, error) {
	return s.list(ctx, `SELECT `+rideCols+` FROM rides r ORDER BY r.request_time DESC`)
}

func (s *Store) ListByCustomer(ctx context.Context, customerID types.ID) ([]Ride, error) {
	return s.list(ctx, `SELECT `+rideCols+` FROM rides r WHERE r.customer_id = $1 ORDER BY r.request_time DESC`, string(customerID))
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	return s.list(ctx, `SELECT `+rideCols+` FROM rides r WHERE r.driver_id = $1 ORDER BY r.request_time DESC`, string(driverID))
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Ride, error) {
	return s.list(ctx, `SELECT `+rideCols+` FROM rides r WHERE r.status = $1 ORDER BY r.request_time DESC`, string(status))
}

func (s *Store) Assign(ctx context.Context, id, driverID types.ID, at time.Time) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE rides AS r
        SET status = 'assigned', driver_id = $3, start_time = $4, updated_at = NOW()
        WHERE id = $1 AND status = ANY($2)
        RETURNING `+rideCols,
		string(id), statusStrings(AssignFrom), string(driverID), at,
	)
	return scanTransition(row)
}

func (s *Store) Unassign(ctx context.Context, id types.ID) (*Ride, types.ID, error) {
	return s.withPrevious(ctx, `
        UPDATE rides AS r
        SET status = 'pending', driver_id = NULL, start_time = NULL, updated_at = NOW()
        FROM (SELECT id, driver_id FROM rides WHERE id = $1 FOR UPDATE) AS prev
        WHERE r.id = prev.id AND r.status = ANY($2)
        RETURNING prev.driver_id, `+rideCols,
		string(id), statusStrings(UnassignFrom),
	)
}

func (s *Store) Cancel(ctx context.Context, id types.ID, reason *string, at time.Time) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE rides AS r
        SET status = 'cancelled', end_time = $3, cancellation_reason = $4, updated_at = NOW()
        WHERE id = $1 AND status = ANY($2)
        RETURNING `+rideCols,
		string(id), statusStrings(CancelFrom), at, reason,
	)
	return scanTransition(row)
}

func (s *Store) Complete(ctx context.Context, id types.ID, at time.Time) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
        UPDATE rides AS r
        SET status = 'completed', end_time = $3, updated_at = NOW()
        WHERE id = $1 AND status = ANY($2)
        RETURNING `+rideCols,
		string(id), statusStrings(CompleteFrom), at,
	)
	return scanTransition(row)
}

func (s *Store) Transfer(ctx context.Context, id, toDriverID types.ID) (*Ride, types.ID, error) {
	return s.withPrevious(ctx, `
        UPDATE rides AS r
        SET driver_id = $3, updated_at = NOW()
        FROM (SELECT id, driver_id FROM rides WHERE id = $1 FOR UPDATE) AS prev
        WHERE r.id = prev.id AND r.status = ANY($2)
          AND r.driver_id IS NOT NULL AND r.driver_id <> $3
        RETURNING prev.driver_id, `+rideCols,
		string(id), statusStrings(TransferFrom), string(toDriverID),
	)
}

func (s *Store) withPrevious(ctx context.Context, query string, args ...any) (*Ride, types.ID, error) {
	row := s.db.QueryRow(ctx, query, args...)
	var prev sql.NullString
	r, err := scanRide(row, &prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", errNotApplied
	}
	if err != nil {
		return nil, "", err
	}
	return r, types.ID(prev.String), nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Ride, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanTransition(row pgx.Row) (*Ride, error) {
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotApplied
	}
	return r, err
}

// scanRide reads rideCols, after any leading destinations.
func scanRide(row pgx.Row, leading ...any) (*Ride, error) {
	var r Ride
	var id, customerID, status string
	var driverID, cancelReason sql.NullString
	var pLat, pLng, dLat, dLng, hours sql.NullFloat64
	var routeID sql.NullInt64
	var startTime, endTime, scheduled sql.NullTime

	dest := append(leading,
		&id, &customerID, &driverID, &r.PickupLocation, &r.DropoffLocation,
		&pLat, &pLng, &dLat, &dLng,
		&r.VehicleType, &r.RideType, &routeID, &r.IsHourly, &hours, &r.Extras,
		&r.Fare, &r.BaseFare, &r.Distance, &r.EstimatedDuration, &status,
		&r.RequestTime, &startTime, &endTime, &cancelReason,
		&r.IsScheduled, &scheduled, &r.PaymentMethod, &r.PaymentStatus, &r.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	r.ID, r.CustomerID, r.Status = types.ID(id), types.ID(customerID), Status(status)
	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	r.PickupCoords = toPoint(pLat, pLng)
	r.DropoffCoords = toPoint(dLat, dLng)
	if routeID.Valid {
		v := routeID.Int64
		r.RouteID = &v
	}
	if hours.Valid {
		v := hours.Float64
		r.EstimatedHours = &v
	}
	if cancelReason.Valid {
		v := cancelReason.String
		r.CancellationReason = &v
	}
	r.StartTime = toTimePtr(startTime)
	r.EndTime = toTimePtr(endTime)
	r.ScheduledTime = toTimePtr(scheduled)
	if r.Extras == nil {
		r.Extras = []string{}
	}
	return &r, nil
}

func statusStrings(set []Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

func coords(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func toPoint(lat, lng sql.NullFloat64) *types.Point {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &types.Point{Lat: lat.Float64, Lng: lng.Float64}
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
