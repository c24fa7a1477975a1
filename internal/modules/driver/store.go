// README: Driver store backed by PostgreSQL; updates run under SELECT ... FOR UPDATE.
package driver

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

const driverCols = `id, user_id, is_online, vehicle_type, vehicle_model, vehicle_color, plate_number, car_class,
        license_number, country, city, kyc_status, kyc_notes, manual_kyc_status, manual_kyc_notes,
        bank_name, iban, account_holder, payout_method, documents_uploaded,
        license_document_url, vehicle_registration_url, insurance_document_url, vehicle_photo_url,
        driver_selfie_url, background_check_url, (total_earnings * 100)::bigint, created_at, updated_at`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

func (s *Store) Create(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO drivers (
            id, user_id, is_online, vehicle_type, vehicle_model, vehicle_color, plate_number, car_class,
            license_number, country, city, kyc_status, kyc_notes, manual_kyc_status, manual_kyc_notes,
            bank_name, iban, account_holder, payout_method, documents_uploaded,
            license_document_url, vehicle_registration_url, insurance_document_url, vehicle_photo_url,
            driver_selfie_url, background_check_url, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8,
            $9, $10, $11, $12, $13, $14, $15,
            $16, $17, $18, $19, $20,
            $21, $22, $23, $24,
            $25, $26, $27, $28
        )`,
		string(d.ID), string(d.UserID), d.IsOnline, d.VehicleType, d.VehicleModel, d.VehicleColor, d.PlateNumber, d.CarClass,
		d.LicenseNumber, d.Country, d.City, string(d.KYCStatus), d.KYCNotes, string(d.ManualKYCStatus), d.ManualKYCNotes,
		d.BankName, d.IBAN, d.AccountHolder, d.PayoutMethod, d.DocumentsUploaded,
		d.LicenseDocumentURL, d.VehicleRegistrationURL, d.InsuranceDocumentURL, d.VehiclePhotoURL,
		d.DriverSelfieURL, d.BackgroundCheckURL, d.CreatedAt, d.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return scanDriver(s.db.QueryRow(ctx, `SELECT `+driverCols+` FROM drivers WHERE id = $1`, string(id)))
}

func (s *Store) GetByUser(ctx context.Context, userID types.ID) (*Driver, error) {
	return scanDriver(s.db.QueryRow(ctx, `SELECT `+driverCols+` FROM drivers WHERE user_id = $1`, string(userID)))
}

func (s *Store) ListOnline(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverCols+` FROM drivers WHERE is_online ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) Mutate(ctx context.Context, id types.ID, fn func(d *Driver) error) (*Driver, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := scanDriver(tx.QueryRow(ctx, `SELECT `+driverCols+` FROM drivers WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, err
	}
	if err := fn(d); err != nil {
		return nil, err
	}

	updated, err := scanDriver(tx.QueryRow(ctx, `
        UPDATE drivers
        SET is_online = $2, vehicle_type = $3, vehicle_model = $4, vehicle_color = $5,
            plate_number = $6, car_class = $7, license_number = $8, country = $9, city = $10,
            kyc_status = $11, kyc_notes = $12, manual_kyc_status = $13, manual_kyc_notes = $14,
            bank_name = $15, iban = $16, account_holder = $17, payout_method = $18,
            documents_uploaded = $19, license_document_url = $20, vehicle_registration_url = $21,
            insurance_document_url = $22, vehicle_photo_url = $23, driver_selfie_url = $24,
            background_check_url = $25, updated_at = NOW()
        WHERE id = $1
        RETURNING `+driverCols,
		string(id), d.IsOnline, d.VehicleType, d.VehicleModel, d.VehicleColor,
		d.PlateNumber, d.CarClass, d.LicenseNumber, d.Country, d.City,
		string(d.KYCStatus), d.KYCNotes, string(d.ManualKYCStatus), d.ManualKYCNotes,
		d.BankName, d.IBAN, d.AccountHolder, d.PayoutMethod,
		d.DocumentsUploaded, d.LicenseDocumentURL, d.VehicleRegistrationURL,
		d.InsuranceDocumentURL, d.VehiclePhotoURL, d.DriverSelfieURL,
		d.BackgroundCheckURL,
	))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var id, userID, kyc, manual string
	var earnings int64
	err := row.Scan(
		&id, &userID, &d.IsOnline, &d.VehicleType, &d.VehicleModel, &d.VehicleColor, &d.PlateNumber, &d.CarClass,
		&d.LicenseNumber, &d.Country, &d.City, &kyc, &d.KYCNotes, &manual, &d.ManualKYCNotes,
		&d.BankName, &d.IBAN, &d.AccountHolder, &d.PayoutMethod, &d.DocumentsUploaded,
		&d.LicenseDocumentURL, &d.VehicleRegistrationURL, &d.InsuranceDocumentURL, &d.VehiclePhotoURL,
		&d.DriverSelfieURL, &d.BackgroundCheckURL, &earnings, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ID, d.UserID = types.ID(id), types.ID(userID)
	d.KYCStatus, d.ManualKYCStatus = KYCStatus(kyc), ManualKYCStatus(manual)
	d.TotalEarnings = types.Cents(earnings)
	return &d, nil
}
