package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/ctlplane"
)

// RunStatus queries the control plane for its status and action table.
func RunStatus(socket string, out io.Writer) error {
	if socket == "" {
		socket = brand.GetSocketPath()
	}
	client, err := ctlplane.NewClientAt(socket)
	if err != nil {
		return fmt.Errorf("failed to connect to control plane: %w\nIs it running? Start with: %s ctl", err, brand.BinaryName)
	}
	defer client.Close()

	return printStatus(client, out)
}

// printStatus renders status and actions. A failed action listing is
// reported inline; a failed status call is an error.
func printStatus(client ctlplane.ControlPlaneClient, out io.Writer) error {
	status, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	Printer.Fprintln(out, styleTitle.Render(brand.Name+" Control Plane"))
	Printer.Fprintln(out)

	state := styleStatusBad.Render("STOPPED")
	if status.Running {
		state = styleStatusGood.Render("RUNNING")
	}
	Printer.Fprintf(out, "Status:    %s\n", state)
	Printer.Fprintf(out, "Version:   %s\n", status.Version)
	Printer.Fprintf(out, "Uptime:    %s\n", status.Uptime)
	Printer.Fprintf(out, "Socket:    %s\n", status.SocketPath)
	Printer.Fprintf(out, "In flight: %d\n", status.InFlight)
	Printer.Fprintf(out, "Executed:  %d\n", status.Executed)
	Printer.Fprintln(out)

	actions, err := client.ListActions()
	if err != nil {
		Printer.Fprintf(out, "%s %v\n", styleStatusWarn.Render("Warning: failed to list actions:"), err)
		return nil
	}
	Printer.Fprintln(out, styleTitle.Render("Actions"))
	_, err = io.WriteString(out, actionsTable(actions).Render()+"\n")
	return err
}

func actionsTable(actions []ctlplane.ActionInfo) *table.Table {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []string{a.Name, a.Command, a.Parameters, a.Timeout.String(), a.Description})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers("ACTION", "COMMAND", "PARAMETERS", "TIMEOUT", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
}
