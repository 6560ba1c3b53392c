package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Headers: []string{"Student", "Batch", "Payment"},
		Rows: []map[string]string{
			{"Student": "Ayu", "Batch": "Go 101 - Morning", "Payment": "verified"},
			{"Student": "Budi, Jr.", "Batch": "Go 101 - Morning", "Payment": "submitted"},
		},
		Weights: []float64{2, 2, 1},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterDataset(), "")
	require.NoError(t, err)
	assert.Equal(t, "Student,Batch,Payment\nAyu,Go 101 - Morning,verified\n\"Budi, Jr.\",Go 101 - Morning,submitted\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	require.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "roster")
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset(), "Enrollment roster")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidths(t *testing.T) {
	widths := columnWidths(rosterDataset())
	require.Len(t, widths, 3)
	assert.InDelta(t, pageWidthLandscape*0.4, widths[0], 0.001)
	assert.InDelta(t, pageWidthLandscape*0.2, widths[2], 0.001)

	even := columnWidths(Dataset{Headers: []string{"a", "b"}})
	assert.InDelta(t, pageWidthLandscape/2, even[0], 0.001)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd~", truncate("abcdefgh", 5))
}
