package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple uppercase", "acme", "ACME"},
		{"strips inc", "Acme, Inc.", "ACME"},
		{"strips corp", "ACME CORP", "ACME"},
		{"strips corporation", "Acme Corporation", "ACME"},
		{"strips llc", "Globex LLC", "GLOBEX"},
		{"strips stacked suffixes", "Initech Holdings Co LLC", "INITECH HOLDINGS"},
		{"keeps single token suffix", "LLC", "LLC"},
		{"punctuation splits tokens", "ACME,INC", "ACME"},
		{"collapses whitespace", "  Nimbus   Cloud  ", "NIMBUS CLOUD"},
		{"keeps digits", "365 Data Centers Ltd", "365 DATA CENTERS"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVendor(tt.input))
		})
	}
}

func TestVendorKeyMatchesAcrossSpellings(t *testing.T) {
	a := TransactionRow{Vendor: "Acme Corp."}
	b := TransactionRow{Vendor: "ACME CORPORATION"}
	assert.Equal(t, a.VendorKey(), b.VendorKey())
}

func TestDecisionIsTerminal(t *testing.T) {
	assert.True(t, DecisionAddToClaim.IsTerminal())
	assert.True(t, DecisionDoNotAdd.IsTerminal())
	assert.False(t, DecisionNeedsReview.IsTerminal())
	assert.False(t, DecisionUnclassified.IsTerminal())
}

func TestMarkEdited(t *testing.T) {
	var row TransactionRow

	assert.False(t, row.IsEdited(FieldTaxCategory))

	row.MarkEdited(FieldTaxCategory)
	assert.True(t, row.IsEdited(FieldTaxCategory))
	assert.False(t, row.IsEdited(FieldNotes))
}

func TestGenerateHashStable(t *testing.T) {
	row := TransactionRow{
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-1",
		Total:         108_250,
		RowIndex:      3,
	}

	first := row.GenerateHash()
	assert.Equal(t, first, row.GenerateHash())
	assert.Len(t, first, 64)

	// Normalized vendor spellings hash identically.
	alt := row
	alt.Vendor = "ACME CORPORATION"
	assert.Equal(t, first, alt.GenerateHash())

	// Any identity component changes the hash.
	alt = row
	alt.Total = 108_251
	assert.NotEqual(t, first, alt.GenerateHash())
}
