// Package render draws the bordered result tables for read results and
// dump output.
package render

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table writes headers and rows as a bordered ASCII table.
func Table(w io.Writer, headers []string, rows [][]string) {
	t := tablewriter.NewWriter(w)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.AppendBulk(rows)
	t.Render()
}
