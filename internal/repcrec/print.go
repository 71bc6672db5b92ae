package repcrec

import (
	"fmt"
	"strconv"

	"github.com/kartikbazzad/repcrec/internal/render"
)

// printRead renders one read result as a single-row bordered table.
func (tm *TransactionManager) printRead(trans string, siteID, varID, value int) {
	headers := []string{"Transaction", "Site", fmt.Sprintf("x%d", varID)}
	row := []string{trans, strconv.Itoa(siteID), strconv.Itoa(value)}
	render.Table(tm.out, headers, [][]string{row})
}

// dump renders the committed value of every variable at every site, with an
// up/down tag per site. Variables a site does not hold print as "-".
func (tm *TransactionManager) dump() {
	headers := make([]string, 0, tm.db.VariableCount+1)
	headers = append(headers, "Site Name")
	for i := 1; i <= tm.db.VariableCount; i++ {
		headers = append(headers, fmt.Sprintf("x%d", i))
	}

	rows := make([][]string, 0, len(tm.sites))
	for _, s := range tm.sites {
		status := "up"
		if !s.Up {
			status = "down"
		}
		row := make([]string, 0, tm.db.VariableCount+1)
		row = append(row, fmt.Sprintf("Site %d (%s)", s.ID, status))
		for i := 1; i <= tm.db.VariableCount; i++ {
			if s.Data().Holds(i) {
				row = append(row, strconv.Itoa(s.Data().Get(i)))
			} else {
				row = append(row, "-")
			}
		}
		rows = append(rows, row)
	}
	render.Table(tm.out, headers, rows)
}
