package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refundworks/refundflow/internal/model"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"whole dollars", "100", 10_000, false},
		{"with cents", "82.50", 8_250, false},
		{"single decimal", "82.5", 8_250, false},
		{"dollar sign", "$1,250.00", 125_000, false},
		{"negative", "-10.50", -1_050, false},
		{"sub-cent precision", "1.005", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMoney(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCSVRows(t *testing.T) {
	input := `id,row_index,vendor,invoice_number,description,subtotal,tax_amount,total,final_decision,confidence
row-1,1,Acme Corp,INV-1,Consulting retainer,"$1,000.00",82.50,"$1,082.50",,
row-2,2,Globex LLC,INV-2,SaaS subscription,500.00,41.25,541.25,Add to Claim,95
`

	rows, err := parseCSVRows(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "row-1", rows[0].ID)
	assert.Equal(t, "Acme Corp", rows[0].Vendor)
	assert.Equal(t, int64(100_000), rows[0].Subtotal)
	assert.Equal(t, int64(8_250), rows[0].TaxAmount)
	assert.Equal(t, int64(108_250), rows[0].Total)

	assert.Equal(t, model.DecisionAddToClaim, rows[1].FinalDecision)
	assert.Equal(t, 95, rows[1].Confidence)
}

func TestParseCSVRowsGeneratesIDs(t *testing.T) {
	input := `vendor,invoice_number,description,total
Acme Corp,INV-1,Consulting,100.00
`

	rows, err := parseCSVRows(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].ID)
	assert.Len(t, rows[0].ID, 64)
}

func TestParseCSVRowsMissingVendorColumn(t *testing.T) {
	input := `id,description
row-1,Consulting
`

	_, err := parseCSVRows(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "vendor"`)
}

func TestCSVRecordRoundTrip(t *testing.T) {
	row := model.TransactionRow{
		ID:            "row-1",
		RowIndex:      3,
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-1",
		Description:   "Consulting retainer",
		Subtotal:      100_000,
		TaxAmount:     8_250,
		Total:         108_250,
		TaxCategory:   "Professional Services",
		FinalDecision: model.DecisionAddToClaim,
		Confidence:    92,
	}

	record := csvRecord(&row)
	require.Len(t, record, len(csvColumns))

	header := strings.Join(csvColumns, ",")
	line := strings.Join(record, ",")

	parsed, err := parseCSVRows(strings.NewReader(header + "\n" + line + "\n"))
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	assert.Equal(t, row.ID, parsed[0].ID)
	assert.Equal(t, row.Subtotal, parsed[0].Subtotal)
	assert.Equal(t, row.TaxCategory, parsed[0].TaxCategory)
	assert.Equal(t, row.FinalDecision, parsed[0].FinalDecision)
	assert.Equal(t, row.Confidence, parsed[0].Confidence)
}
