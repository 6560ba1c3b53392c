package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/export"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

// Supported roster export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const rosterPageSize = 100

type rosterLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type renderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled bool
	MaxRows int
}

// ExportResult is a rendered roster ready to be streamed to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders enrollment rosters. It only reads ledger state.
type ExportService struct {
	ledger    rosterLister
	renderers map[string]renderer
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(ledger rosterLister, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	return &ExportService{
		ledger: ledger,
		renderers: map[string]renderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Roster renders enrollments matching filter in the requested format.
func (s *ExportService) Roster(ctx context.Context, actor models.Actor, format string, filter models.EnrollmentFilter) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "roster exports are disabled")
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can export rosters")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	rows, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}
	title := "Enrollment roster"
	if filter.BatchID != "" && len(rows) > 0 {
		title = fmt.Sprintf("Enrollment roster - %s (%s)", rows[0].BatchName, rows[0].CourseName)
	}
	data, err := r.Render(rosterDataset(rows), title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	scope := filter.BatchID
	if scope == "" {
		scope = "all"
	}
	filename := fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(scope), s.now().UTC().Format("20060102_150405"), format)
	s.logger.Info("roster exported", zap.String("format", format), zap.Int("rows", len(rows)), zap.String("admin_id", actor.UserID))
	return &ExportResult{Filename: filename, ContentType: r.ContentType(), Data: data, Rows: len(rows)}, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	filter.PageSize = rosterPageSize
	filter.SortBy = "student_name"
	filter.SortOrder = "ASC"
	var rows []models.EnrollmentDetail
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.ledger.List(ctx, filter)
		if err != nil {
			return nil, ledgerError(err, "failed to load roster")
		}
		if total > s.cfg.MaxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster has %d rows; narrow the filter below %d", total, s.cfg.MaxRows))
		}
		rows = append(rows, items...)
		if len(items) < rosterPageSize || len(rows) >= total {
			return rows, nil
		}
	}
}

func rosterDataset(rows []models.EnrollmentDetail) export.Dataset {
	headers := []string{"Student", "Email", "Phone", "Course", "Batch", "Status", "Payment", "Submitted", "Verified By", "Price"}
	data := export.Dataset{
		Headers: headers,
		Rows:    make([]map[string]string, 0, len(rows)),
		Weights: []float64{2.2, 2.6, 1.4, 2, 1.6, 1, 1, 1.4, 1.4, 1},
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Student":     row.StudentName,
			"Email":       row.Email,
			"Phone":       deref(row.PhoneNumber),
			"Course":      row.CourseName,
			"Batch":       row.BatchName,
			"Status":      string(row.Status),
			"Payment":     string(row.PaymentStatus),
			"Submitted":   formatDate(row.PaymentSubmittedDate),
			"Verified By": deref(row.VerifiedBy),
			"Price":       strconv.FormatFloat(row.Price, 'f', 2, 64),
		})
	}
	return data
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
