package model

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for tariff dates.
const DateLayout = "2006-01-02"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// TariffItem is one normalized tariff quote as returned by a fetch.
type TariffItem struct {
	NMID          int64           `json:"nmid"`
	BoxTypeName   string          `json:"box_type_name"`
	Size          *string         `json:"size"`
	WarehouseID   int             `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	Coef          decimal.Decimal `json:"coef"`
	Amount        decimal.Decimal `json:"amount"`
	RegionID      int             `json:"region_id"`
	RegionName    string          `json:"region_name"`
}

// Key returns the natural key of the item for the given date.
func (i TariffItem) Key(date string) NaturalKey {
	return NaturalKey{Date: date, NMID: i.NMID, WarehouseID: i.WarehouseID, RegionID: i.RegionID}
}

// TariffRecord is a persisted tariff quote.
type TariffRecord struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
	TariffItem
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityKey identifies one SKU at one warehouse in one region, independent of date.
type EntityKey struct {
	NMID        int64
	WarehouseID int
	RegionID    int
}

// Entity returns the snapshot identity of the record.
func (r TariffRecord) Entity() EntityKey {
	return EntityKey{NMID: r.NMID, WarehouseID: r.WarehouseID, RegionID: r.RegionID}
}

// NaturalKey uniquely identifies one stored tariff record.
type NaturalKey struct {
	Date        string
	NMID        int64
	WarehouseID int
	RegionID    int
}

// Destination kinds.
const (
	DestinationSheets = "sheets"
	DestinationXLSX   = "xlsx"
)

// SheetDestination identifies one spreadsheet export target. For the xlsx
// kind SpreadsheetID is a path to a workbook on local disk.
type SheetDestination struct {
	SpreadsheetID string `json:"spreadsheetId" yaml:"spreadsheetId" mapstructure:"spreadsheet_id"`
	SheetName     string `json:"sheetName" yaml:"sheetName" mapstructure:"sheet_name"`
	Range         string `json:"range" yaml:"range" mapstructure:"range"`
	Kind          string `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
}

// DestinationKind returns the destination kind, defaulting to sheets.
func (d SheetDestination) DestinationKind() string {
	if d.Kind == "" {
		return DestinationSheets
	}
	return d.Kind
}

// A1 returns the sheet-qualified range, e.g. "Tariffs!A1:J".
func (d SheetDestination) A1() string {
	if d.Range == "" {
		return d.SheetName
	}
	return d.SheetName + "!" + d.Range
}

// ValidateDate checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	if !dateRe.MatchString(s) {
		return Errorf(KindInvalidInput, "validate date", "invalid date format %q, use YYYY-MM-DD", s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return Errorf(KindInvalidInput, "validate date", "invalid calendar date %q", s)
	}
	return nil
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}
