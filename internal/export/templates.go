package export

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"strings"
	"time"

	"dealdesk/api/internal/deal"
)

//go:embed templates/*.html
var templateFS embed.FS

var dealSheetTemplate = template.Must(
	template.New("deal_sheet.html").Funcs(template.FuncMap{
		"money": formatMoney,
		"num":   formatNumber,
		"date": func(t time.Time) string {
			return t.UTC().Format("Jan 2, 2006 15:04 MST")
		},
	}).ParseFS(templateFS, "templates/deal_sheet.html"),
)

type TemplateData struct {
	PropertyID   string
	Version      string
	Revision     int
	Status       string
	UpdatedBy    string
	UpdatedAt    time.Time
	Details      deal.PropertyDetails
	Underwriting deal.UnderwritingInputs
	Brokers      []deal.Broker
	Tenants      []deal.Tenant
	OccupiedSf   float64
	VacantSf     float64
}

// NewTemplateData drops soft-deleted rows; the sheet shows the live deal.
func NewTemplateData(snap deal.Snapshot) TemplateData {
	data := TemplateData{
		PropertyID:   snap.PropertyID,
		Version:      snap.Version,
		Revision:     snap.Revision,
		Status:       versionStatus(snap),
		UpdatedBy:    snap.UpdatedBy,
		UpdatedAt:    snap.UpdatedAt,
		Details:      snap.PropertyDetails,
		Underwriting: snap.UnderwritingInputs,
		OccupiedSf:   deal.OccupiedSf(snap.Tenants),
	}
	for _, b := range snap.Brokers {
		if !b.IsDeleted {
			data.Brokers = append(data.Brokers, b)
		}
	}
	for _, t := range snap.Tenants {
		if t.IsDeleted {
			continue
		}
		if t.IsVacant {
			data.VacantSf = t.SquareFeet
		}
		data.Tenants = append(data.Tenants, t)
	}
	return data
}

func RenderDealSheetHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := dealSheetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func versionStatus(snap deal.Snapshot) string {
	switch {
	case snap.IsHistorical:
		return "Historical"
	case snap.IsLatest:
		return "Latest"
	default:
		return "Draft"
	}
}

func formatMoney(v float64) string {
	return "$" + formatNumber(v)
}

// formatNumber groups thousands and keeps at most two decimals.
func formatNumber(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	raw := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(raw, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
