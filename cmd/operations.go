package cmd

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"grimm.is/speedctl/internal/api"
	"grimm.is/speedctl/internal/api/openapi"
	"grimm.is/speedctl/internal/operation"
)

// RunOperations prints the registered operations.
func RunOperations(out io.Writer) error {
	Printer.Fprintln(out, styleTitle.Render("Operations"))
	_, err := io.WriteString(out, operationsTable(operation.Default()).Render()+"\n")
	return err
}

func operationsTable(reg *operation.Registry) *table.Table {
	rows := make([][]string, 0, reg.Len())
	for _, op := range reg.All() {
		params := make([]string, 0, op.Arity())
		for _, p := range op.Params {
			params = append(params, p.Name)
		}
		limited := "no"
		if api.RateLimited(op) {
			limited = "yes"
		}
		rows = append(rows, []string{
			op.Name,
			openapi.ServicePrefix + op.Endpoint,
			string(op.Sync),
			strings.Join(params, ", "),
			limited,
			op.Description,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers("NAME", "PATH", "SYNC", "PARAMS", "RATE LIMITED", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
}
