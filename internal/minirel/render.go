package minirel

import (
	"bufio"
	"io"
	"strings"

	"github.com/RichardKnop/minirel/internal/record"
)

// Render prints the field names of the result followed by one line per
// record, values separated by ", ".
func Render(w io.Writer, aResult Result) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(aResult.Columns.Names(), ", ") + "\n"); err != nil {
		return err
	}

	parts := make([]string, len(aResult.Columns.Fields))
	for _, values := range aResult.Rows {
		for i, aField := range aResult.Columns.Fields {
			parts[i] = record.Format(values[i], aField)
		}
		if _, err := bw.WriteString(strings.Join(parts, ", ") + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
