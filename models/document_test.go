package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentID(t *testing.T) {
	tests := []struct {
		name         string
		organization string
		number       string
		want         string
	}{
		{"simple", "ABNT", "NBR 5410", "abnt_nbr_5410"},
		{"already lowercase", "iec", "61850", "iec_61850"},
		{"punctuation collapsed", "ISO/IEC", "27001:2013", "iso_iec_27001_2013"},
		{"consecutive separators", "DIN -- EN", "ISO  9001", "din_en_iso_9001"},
		{"leading and trailing separators", " NFPA ", " 70E ", "nfpa_70e"},
		{"accents are separators", "ABNT", "Elétrica 5410", "abnt_el_trica_5410"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentID(tt.organization, tt.number))
		})
	}
}

func TestDocumentIDStable(t *testing.T) {
	// The identity must not depend on formatting differences in the input.
	a := DocumentID("ABNT", "NBR 5410")
	b := DocumentID("abnt", "nbr-5410")
	assert.Equal(t, a, b)
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusProcessing, StatusCompleted, StatusError} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus("done"))
	assert.False(t, ValidStatus(""))
}

func TestDocumentMeta(t *testing.T) {
	doc := Document{
		ID:             "abnt_nbr_5410",
		Title:          "Electrical installations",
		StandardNumber: "NBR 5410",
		Organization:   "ABNT",
		Year:           2004,
		Categories:     []string{"Elétrica", "Baixa Tensão"},
		Status:         StatusCompleted,
	}

	meta := doc.Meta()
	assert.Equal(t, doc.Title, meta.Title)
	assert.Equal(t, doc.StandardNumber, meta.StandardNumber)
	assert.Equal(t, doc.Organization, meta.Organization)
	assert.Equal(t, doc.Year, meta.Year)
	assert.Equal(t, doc.Categories, meta.Categories)
}
