package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

type column struct {
	key    string
	header string
	width  float64 // 0 shares the remaining width
	def    string
}

var tripColumns = []column{
	{"time_from", "Time From", 25, ""},
	{"time_to", "Time To", 25, ""},
	{"duration", "Duration", 20, ""},
	{"distance", "Distance", 20, "0"},
	{"address", "Address From", 0, ""},
	{"next_address", "Address To", 0, ""},
	{"fuel_used", "Fuel Used", 20, "0"},
	{"avg_speed", "Avg Speed", 20, "0"},
}

var totalsLayout = []struct {
	key, label, def string
}{
	{"object_name", "Object Name", ""},
	{"moving_time", "Moving Time", "00:00"},
	{"distance", "Distance (km)", "0"},
	{"avg_speed", "Avg Speed (km)", "0"},
	{"stationary_time", "Stationary Time", "00:00"},
	{"moving_time_job", "Moving Time Job", "00:00"},
	{"stationary_time_job", "Stationary Time Job", "00:00"},
	{"moving_time_private", "Moving Time Private", "00:00"},
	{"stationary_time_private", "Stationary Time Private", "00:00"},
}

const (
	pageWidth = 297.0
	margin    = 10.0
	rowHeight = 7.0
)

// RenderPDF draws the landscape trip/stop report.
func RenderPDF(p *Payload, now time.Time) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle("Trip And Stop", true)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(238, 15, "Trip And Stop")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(255, 24, "Date: "+now.Format("2/1/2006"))

	y := 45.0
	if len(p.Totals) > 0 {
		y = drawTotals(pdf, tr, p.Totals)
	}
	pdf.SetY(y + 10)

	for _, v := range p.Data {
		drawVehicle(pdf, tr, v)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawTotals(pdf *fpdf.Fpdf, tr func(string) string, totals map[string]any) float64 {
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(margin, 26, pageWidth-12, 26)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(margin, 37, "Totals")
	pdf.SetFont("Helvetica", "", 12)

	y := 45.0
	count := 0
	for _, item := range totalsLayout {
		value := cell(totals[item.key], item.def)
		if value == "" {
			continue
		}
		x := []float64{35, 125, 215}[count%3]
		y = float64(count/3)*5 + 35
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Text(x, y, tr(item.label+":"))
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(x+55, y, tr(value))
		count++
	}
	pdf.Line(margin, y+5, pageWidth-12, y+5)
	return y
}

func drawVehicle(pdf *fpdf.Fpdf, tr func(string) string, v Vehicle) {
	widths := columnWidths()

	title := v.Name
	if title == "" {
		title = cell(v.ObjectID, "")
	}
	if title != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, rowHeight, tr(title), "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(33, 150, 243)
	pdf.SetTextColor(255, 255, 255)
	for i, c := range tripColumns {
		pdf.CellFormat(widths[i], rowHeight, c.header, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(0, 0, 0)
	for n, e := range v.Entries {
		if n%2 == 1 {
			pdf.SetFillColor(240, 240, 240)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for i, c := range tripColumns {
			text := fit(pdf, tr(cell(e[c.key], c.def)), widths[i]-2)
			pdf.CellFormat(widths[i], rowHeight, text, "", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

func columnWidths() []float64 {
	fixed, shared := 0.0, 0
	for _, c := range tripColumns {
		if c.width == 0 {
			shared++
		}
		fixed += c.width
	}
	rest := (pageWidth - 2*margin - fixed) / float64(shared)
	widths := make([]float64, len(tripColumns))
	for i, c := range tripColumns {
		widths[i] = c.width
		if c.width == 0 {
			widths[i] = rest
		}
	}
	return widths
}

// fit shortens s with an ellipsis until it fits width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return strings.TrimSpace(string(r)) + "..."
}

func cell(v any, def string) string {
	switch x := v.(type) {
	case nil:
		return def
	case string:
		if x == "" {
			return def
		}
		return x
	case float64:
		if x == 0 && def != "" {
			return def
		}
		return fmt.Sprint(x)
	}
	return fmt.Sprint(v)
}
