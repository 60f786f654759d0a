package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"dealdesk/api/internal/deal"
)

const (
	sheetSummary  = "Summary"
	sheetRentRoll = "Rent Roll"
	sheetBrokers  = "Brokers"
)

func exportXLSX(snap deal.Snapshot, base string) (*Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetRentRoll, sheetBrokers} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	data := NewTemplateData(snap)
	if err := writeRows(f, sheetSummary, summaryRows(data)); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetRentRoll, rentRollRows(data)); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetBrokers, brokerRows(data)); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: base + ".xlsx",
		MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryRows(data TemplateData) [][]any {
	d, u := data.Details, data.Underwriting
	return [][]any{
		{"Property", data.PropertyID},
		{"Version", data.Version},
		{"Revision", data.Revision},
		{"Status", data.Status},
		{"Updated by", data.UpdatedBy},
		{"Address", d.Address},
		{"Market", d.Market},
		{"Sub market", d.SubMarket},
		{"Property type", d.PropertyType},
		{"Asking price", d.AskingPrice},
		{"Bid amount", d.BidAmount},
		{"Building SF", d.BuildingSizeSf},
		{"Occupied SF", data.OccupiedSf},
		{"Vacant SF", data.VacantSf},
		{"List price", u.ListPrice},
		{"Bid", u.Bid},
		{"Est. start date", u.EstStartDate},
		{"Hold period (years)", u.HoldPeriodYears},
		{"Exit cap rate", u.ExitCapRate},
	}
}

func rentRollRows(data TemplateData) [][]any {
	rows := [][]any{{"Tenant", "Credit", "SF", "Rent PSF", "Escalations", "Lease start", "Lease end", "Lease type", "Renew", "Downtime (months)", "TI PSF", "LC PSF"}}
	for _, t := range data.Tenants {
		name := t.TenantName
		if t.IsVacant {
			name = "Vacant"
		}
		rows = append(rows, []any{name, t.CreditType, t.SquareFeet, t.RentPsf, t.AnnualEscalations, t.LeaseStart, t.LeaseEnd, t.LeaseType, t.Renew, t.DowntimeMonths, t.TIPsf, t.LCPsf})
	}
	return rows
}

func brokerRows(data TemplateData) [][]any {
	rows := [][]any{{"Name", "Company", "Phone", "Email"}}
	for _, b := range data.Brokers {
		rows = append(rows, []any{b.Name, b.Company, b.Phone, b.Email})
	}
	return rows
}
