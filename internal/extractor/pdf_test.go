package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextRejectsNonPDF(t *testing.T) {
	_, err := Text([]byte("this is not a pdf"))
	assert.Error(t, err)
}

func TestTextRejectsEmptyInput(t *testing.T) {
	_, err := Text(nil)
	assert.Error(t, err)
}

func TestTextRejectsTruncatedPDF(t *testing.T) {
	// A valid header with no xref table must fail as a parse error, not
	// a panic.
	_, err := Text([]byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"))
	assert.Error(t, err)
}
