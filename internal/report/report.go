// Package report builds the scheduled trip/stop report: it validates the
// scheduler's request, fills in missing addresses, renders a PDF and
// either mails it or hands it back.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleet-dashboard/internal/backend"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/observability"
)

const (
	TypeTripStop    = "trip_stop_report"
	TypeMaintenance = "maintenance_report"
	TypeFuelUsage   = "fuel_usage_report"
	TypeOK          = "report_ok"
	TypeFail        = "report_fail"
)

var validTypes = []string{TypeTripStop, TypeMaintenance, TypeFuelUsage, TypeOK, TypeFail}

var (
	ErrInvalidType   = errors.New("report: invalid report type")
	ErrMissingParams = errors.New("report: missing required parameters")
	ErrInvalidData   = errors.New("report: invalid data format")
	ErrTestFailure   = errors.New("report: test failure, report_fail type requested")
	ErrNoMailer      = errors.New("report: no mailer configured")
)

// Request is what the scheduler posts. Email is a list, a comma separated
// string or a single address; Data may arrive JSON encoded as a string.
type Request struct {
	Token        string          `json:"token"`
	ScheduleDate string          `json:"schedule_date"`
	Format       string          `json:"format"`
	Email        json.RawMessage `json:"email"`
	Data         json.RawMessage `json:"data"`
}

// Entry is one trip or stop row; unknown columns are kept as sent.
type Entry map[string]any

type Vehicle struct {
	ObjectID any     `json:"objectid"`
	Name     string  `json:"object_name,omitempty"`
	Entries  []Entry `json:"d"`
}

// Payload is the typed view of the scheduler's data. The decoded document
// is kept alongside: Entries point into it, so enrichment shows up in both,
// and MarshalJSON writes it back with every field the scheduler sent.
type Payload struct {
	Params struct {
		ReportType string `json:"report_type"`
	} `json:"params"`
	Data   []Vehicle      `json:"data"`
	Totals map[string]any `json:"totals,omitempty"`

	doc map[string]any
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	if p.doc != nil {
		return json.Marshal(p.doc)
	}
	type plain Payload
	return json.Marshal((*plain)(p))
}

type Kind int

const (
	KindTest Kind = iota
	KindEmailed
	KindPDF
	KindAnalysis
)

// Outcome is a generated report ready to be written to the caller.
type Outcome struct {
	Kind     Kind
	Type     string
	Message  string
	Emails   []string
	PDF      []byte
	Filename string
	Payload  *Payload
}

// AddressCache is the backend's store of resolved addresses.
type AddressCache interface {
	AddressCacheGet(ctx context.Context, ts backend.TokenSource, lat, lng float64) (string, error)
	AddressCacheAdd(ctx context.Context, ts backend.TokenSource, entries []backend.AddressEntry) error
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

type Service struct {
	cache    AddressCache
	geocoder Geocoder
	mailer   Mailer
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(cache AddressCache, geocoder Geocoder, mailer Mailer, logger *zap.Logger) *Service {
	logger = applog.OrNop(logger)
	return &Service{cache: cache, geocoder: geocoder, mailer: mailer, logger: logger, now: time.Now}
}

// Generate runs a report request end to end.
func (s *Service) Generate(ctx context.Context, req Request) (*Outcome, error) {
	payload, err := decodePayload(req.Data)
	if err != nil {
		observability.RecordReport(ctx, "unknown", "invalid")
		return nil, err
	}
	reportType := payload.Params.ReportType

	if !isValidType(reportType) {
		observability.RecordReport(ctx, "unknown", "invalid")
		return nil, fmt.Errorf("%w: received report_type: %s, valid types are: %s",
			ErrInvalidType, reportType, strings.Join(validTypes, ", "))
	}

	switch reportType {
	case TypeFail:
		observability.RecordReport(ctx, reportType, "failure")
		return nil, ErrTestFailure
	case TypeOK:
		observability.RecordReport(ctx, reportType, "success")
		return &Outcome{Kind: KindTest, Type: reportType, Message: "Test success - report_ok type requested"}, nil
	}

	recipients := Recipients(req.Email)
	if req.Token == "" || req.ScheduleDate == "" {
		observability.RecordReport(ctx, reportType, "invalid")
		return nil, ErrMissingParams
	}

	ts := backend.StaticToken(req.Token)
	for i := range payload.Data {
		if len(payload.Data[i].Entries) > 0 {
			s.Enrich(ctx, ts, payload.Data[i].Entries)
		}
	}

	format := req.Format
	if format == "" {
		format = "pdf"
	}
	if format != "pdf" {
		observability.RecordReport(ctx, reportType, "success")
		return &Outcome{
			Kind:    KindAnalysis,
			Type:    reportType,
			Message: "Data analysis only - PDF generation disabled",
			Payload: payload,
		}, nil
	}

	pdf, err := RenderPDF(payload, s.now())
	if err != nil {
		observability.RecordReport(ctx, reportType, "failure")
		return nil, err
	}
	filename := fmt.Sprintf("trip_stop_report_%s.pdf", req.ScheduleDate)

	if len(recipients) == 0 {
		observability.RecordReport(ctx, reportType, "success")
		return &Outcome{Kind: KindPDF, Type: reportType, PDF: pdf, Filename: filename}, nil
	}

	if s.mailer == nil {
		observability.RecordReport(ctx, reportType, "failure")
		return nil, ErrNoMailer
	}
	err = s.mailer.Send(Mail{
		To:             recipients,
		Subject:        "Trip Stop Report - " + req.ScheduleDate,
		Body:           "Please find attached the Trip Stop Report for " + req.ScheduleDate,
		AttachmentName: filename,
		Attachment:     pdf,
	})
	if err != nil {
		observability.RecordReport(ctx, reportType, "failure")
		return nil, fmt.Errorf("send report: %w", err)
	}
	s.logger.Info("report mailed",
		zap.String("type", reportType),
		zap.String("schedule_date", req.ScheduleDate),
		zap.Strings("to", recipients))
	observability.RecordReport(ctx, reportType, "success")
	return &Outcome{
		Kind:    KindEmailed,
		Type:    reportType,
		Message: "Report generated and sent to email successfully",
		Emails:  recipients,
	}, nil
}

// Structure summarizes a payload per vehicle for the analysis answer.
func (p *Payload) Structure() []map[string]any {
	out := make([]map[string]any, 0, len(p.Data))
	for _, v := range p.Data {
		var first Entry
		if len(v.Entries) > 0 {
			first = v.Entries[0]
		}
		out = append(out, map[string]any{
			"objectid":   v.ObjectID,
			"entries":    len(v.Entries),
			"firstEntry": first,
		})
	}
	return out
}

func decodePayload(raw json.RawMessage) (*Payload, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return &Payload{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		raw = json.RawMessage(s)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := json.Unmarshal(raw, &p.doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	p.shareEntries()
	return &p, nil
}

// shareEntries points the typed entries at the maps of the decoded
// document.
func (p *Payload) shareEntries() {
	vehicles, _ := p.doc["data"].([]any)
	for i := range p.Data {
		if i >= len(vehicles) {
			return
		}
		vehicle, _ := vehicles[i].(map[string]any)
		rows, _ := vehicle["d"].([]any)
		for j := range p.Data[i].Entries {
			if j >= len(rows) {
				break
			}
			if row, ok := rows[j].(map[string]any); ok {
				p.Data[i].Entries[j] = Entry(row)
			}
		}
	}
}

func isValidType(t string) bool {
	for _, v := range validTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Recipients normalizes the email field.
func Recipients(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil
	}
	return compact(strings.Split(single, ","))
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
