// README: Driver profile, patch semantics and the KYC status tables.
package driver

import (
	"strings"
	"time"

	"vitecab/internal/types"
)

type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

type ManualKYCStatus string

const (
	ManualKYCNone     ManualKYCStatus = "none"
	ManualKYCPending  ManualKYCStatus = "pending"
	ManualKYCApproved ManualKYCStatus = "approved"
	ManualKYCRejected ManualKYCStatus = "rejected"
)

// KYCTransitions lists the admin decisions allowed from each status.
var KYCTransitions = map[KYCStatus][]KYCStatus{
	KYCPending:  {KYCApproved, KYCRejected},
	KYCApproved: {KYCPending},
	KYCRejected: {KYCPending},
}

func CanSetKYC(from, to KYCStatus) bool {
	for _, s := range KYCTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Driver struct {
	ID                     types.ID        `json:"id"`
	UserID                 types.ID        `json:"userId"`
	IsOnline               bool            `json:"isOnline"`
	VehicleType            string          `json:"vehicleType"`
	VehicleModel           string          `json:"vehicleModel"`
	VehicleColor           string          `json:"vehicleColor"`
	PlateNumber            string          `json:"plateNumber"`
	CarClass               string          `json:"carClass"`
	LicenseNumber          string          `json:"licenseNumber"`
	Country                string          `json:"country"`
	City                   string          `json:"city"`
	KYCStatus              KYCStatus       `json:"kycStatus"`
	KYCNotes               string          `json:"kycNotes"`
	ManualKYCStatus        ManualKYCStatus `json:"manualKycStatus"`
	ManualKYCNotes         string          `json:"manualKycNotes"`
	BankName               string          `json:"bankName"`
	IBAN                   string          `json:"iban"`
	AccountHolder          string          `json:"accountHolder"`
	PayoutMethod           string          `json:"payoutMethod"`
	DocumentsUploaded      bool            `json:"documentsUploaded"`
	LicenseDocumentURL     string          `json:"licenseDocumentUrl"`
	VehicleRegistrationURL string          `json:"vehicleRegistrationUrl"`
	InsuranceDocumentURL   string          `json:"insuranceDocumentUrl"`
	VehiclePhotoURL        string          `json:"vehiclePhotoUrl"`
	DriverSelfieURL        string          `json:"driverSelfieUrl"`
	BackgroundCheckURL     string          `json:"backgroundCheckUrl"`
	TotalEarnings          types.Cents     `json:"totalEarnings"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// Patch holds one optional field per mutable attribute; nil means not supplied.
type Patch struct {
	IsOnline *bool `json:"isOnline"`

	VehicleType  *string `json:"vehicleType"`
	VehicleModel *string `json:"vehicleModel"`
	VehicleColor *string `json:"vehicleColor"`
	PlateNumber  *string `json:"plateNumber"`
	CarClass     *string `json:"carClass"`

	LicenseNumber *string `json:"licenseNumber"`
	Country       *string `json:"country"`
	City          *string `json:"city"`

	BankName      *string `json:"bankName"`
	IBAN          *string `json:"iban"`
	AccountHolder *string `json:"accountHolder"`
	PayoutMethod  *string `json:"payoutMethod"`

	LicenseDocumentURL     *string `json:"licenseDocumentUrl"`
	VehicleRegistrationURL *string `json:"vehicleRegistrationUrl"`
	InsuranceDocumentURL   *string `json:"insuranceDocumentUrl"`
	VehiclePhotoURL        *string `json:"vehiclePhotoUrl"`
	DriverSelfieURL        *string `json:"driverSelfieUrl"`
	BackgroundCheckURL     *string `json:"backgroundCheckUrl"`
}

// touchesDocuments covers the five required documents only; the background check is optional.
func (p Patch) touchesDocuments() bool {
	return p.LicenseDocumentURL != nil || p.VehicleRegistrationURL != nil || p.InsuranceDocumentURL != nil ||
		p.VehiclePhotoURL != nil || p.DriverSelfieURL != nil
}

// touchesVehicle covers the identifying vehicle and license fields. Vehicle type and class do not reopen KYC.
func (p Patch) touchesVehicle() bool {
	return p.VehicleModel != nil || p.VehicleColor != nil || p.PlateNumber != nil || p.LicenseNumber != nil
}

// RequiresReview reports whether the patch supplies a required document or an identifying vehicle field.
func (p Patch) RequiresReview() bool {
	return p.touchesDocuments() || p.touchesVehicle()
}

func (p Patch) Empty() bool {
	return p == Patch{}
}

// ApplyPatch merges p into d and recomputes the derived flags from the merged view.
func ApplyPatch(d Driver, p Patch) Driver {
	setBool(&d.IsOnline, p.IsOnline)
	setString(&d.VehicleType, p.VehicleType)
	setString(&d.VehicleModel, p.VehicleModel)
	setString(&d.VehicleColor, p.VehicleColor)
	setString(&d.PlateNumber, p.PlateNumber)
	setString(&d.CarClass, p.CarClass)
	setString(&d.LicenseNumber, p.LicenseNumber)
	setString(&d.Country, p.Country)
	setString(&d.City, p.City)
	setString(&d.BankName, p.BankName)
	setString(&d.IBAN, p.IBAN)
	setString(&d.AccountHolder, p.AccountHolder)
	setString(&d.PayoutMethod, p.PayoutMethod)
	setString(&d.LicenseDocumentURL, p.LicenseDocumentURL)
	setString(&d.VehicleRegistrationURL, p.VehicleRegistrationURL)
	setString(&d.InsuranceDocumentURL, p.InsuranceDocumentURL)
	setString(&d.VehiclePhotoURL, p.VehiclePhotoURL)
	setString(&d.DriverSelfieURL, p.DriverSelfieURL)
	setString(&d.BackgroundCheckURL, p.BackgroundCheckURL)

	if !d.DocumentsUploaded && d.hasAllDocuments() {
		d.DocumentsUploaded = true
	}
	if p.RequiresReview() && d.KYCStatus != KYCPending {
		d.KYCStatus = KYCPending
	}
	return d
}

func (d Driver) hasAllDocuments() bool {
	for _, u := range []string{d.LicenseDocumentURL, d.VehicleRegistrationURL, d.InsuranceDocumentURL, d.VehiclePhotoURL, d.DriverSelfieURL} {
		if strings.TrimSpace(u) == "" {
			return false
		}
	}
	return true
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
