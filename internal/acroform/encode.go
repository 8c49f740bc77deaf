package acroform

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// encodeText returns a PDF text string for s. Printable ASCII is written as an
// escaped literal, anything else as UTF-16BE with a byte order mark.
func encodeText(s string) types.Object {
	if isPrintableASCII(s) {
		if esc, err := types.Escape(s); err == nil {
			return types.StringLiteral(*esc)
		}
	}
	return types.NewHexLiteral([]byte(types.EncodeUTF16String(s)))
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 126 || (c < 32 && c != '\n' && c != '\r' && c != '\t') {
			return false
		}
	}
	return true
}
