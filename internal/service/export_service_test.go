package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func newExportFixture(t *testing.T, cfg ExportConfig) (*ExportService, *workflow) {
	t.Helper()
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 5)
	w.ledger.SeedStudent(models.Student{ID: "stu-2", FullName: "Budi, Jr.", Email: "budi@example.com"})
	svc := NewExportService(w.ledger, cfg, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	return svc, w
}

func TestRosterExportGuards(t *testing.T) {
	disabled, _ := newExportFixture(t, ExportConfig{})
	_, err := disabled.Roster(context.Background(), adminActor, ExportFormatCSV, models.EnrollmentFilter{})
	requireCode(t, err, appErrors.ErrFeatureDisabled)

	svc, _ := newExportFixture(t, ExportConfig{Enabled: true})
	_, err = svc.Roster(context.Background(), studentActor, ExportFormatCSV, models.EnrollmentFilter{})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = svc.Roster(context.Background(), adminActor, "xlsx", models.EnrollmentFilter{})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestRosterExportCSV(t *testing.T) {
	svc, w := newExportFixture(t, ExportConfig{Enabled: true})
	first := w.create(t, studentActor)
	w.create(t, student("stu-2"))
	w.submit(t, studentActor, first.ID)

	result, err := svc.Roster(context.Background(), adminActor, "CSV", models.EnrollmentFilter{BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "roster_batch-1_20240501_083000.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Email,Phone,Course,Batch,Status,Payment,Submitted,Verified By,Price", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Ayu,ayu@example.com,,Go Fundamentals,Morning,pending,submitted,"))
	assert.True(t, strings.HasPrefix(lines[2], `"Budi, Jr.",budi@example.com,`))
	assert.True(t, strings.HasSuffix(lines[2], ",pending,pending,,,1500000.00"))
}

func TestRosterExportPDF(t *testing.T) {
	svc, w := newExportFixture(t, ExportConfig{Enabled: true})
	w.create(t, studentActor)

	result, err := svc.Roster(context.Background(), adminActor, ExportFormatPDF, models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "roster_all_20240501_083000.pdf", result.Filename)
	assert.True(t, bytes.HasPrefix(result.Data, []byte("%PDF")))
}

func TestRosterExportRowLimit(t *testing.T) {
	svc, w := newExportFixture(t, ExportConfig{Enabled: true, MaxRows: 1})
	w.create(t, studentActor)
	w.create(t, student("stu-2"))

	_, err := svc.Roster(context.Background(), adminActor, ExportFormatCSV, models.EnrollmentFilter{})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "batch_1-a-b", sanitizeFilename("batch 1/a:b"))
	assert.Equal(t, "go_101-morning", sanitizeFilename("go 101/morning"))
}
