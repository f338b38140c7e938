package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/simplelink/internal/linkstate"
	"github.com/muurk/simplelink/internal/transport"
	"github.com/muurk/simplelink/internal/wlan"
)

// Detail is one key/value line of a result box. Details render in order.
type Detail struct {
	Key   string
	Value string
}

// RenderHeader renders a command header box
func RenderHeader(title, command string, params []Detail, width int) string {
	width = clampWidth(width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(title)),
		HeaderCommandStyle.Render(command),
	)
	if len(params) == 0 {
		return HeaderBorderStyle(width).Render(top)
	}

	lines := make([]string, 0, len(params))
	for _, p := range params {
		lines = append(lines, HeaderParamKeyStyle.Render(p.Key+":")+" "+HeaderParamValueStyle.Render(p.Value))
	}
	divider := RenderHorizontalDivider(width-6, "─")
	content := lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(lines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details []Detail, width int) string {
	width = clampWidth(width)
	lines := []string{
		"",
		SuccessTitleStyle.Render(fmt.Sprintf("%s  SUCCESS  ─  %s", SuccessMarker, title)),
		"",
	}
	for _, d := range details {
		lines = append(lines, ResultKeyStyle.Render(d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	lines = append(lines, "")
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RetryNote is shown under errors that may clear on a second attempt.
const RetryNote = "This failure is often transient; running the command again may succeed."

// RenderErrorBox renders an error result box. The hint for err, if any,
// follows the message, then RetryNote when wlan.Retryable(err).
func RenderErrorBox(title string, err error, width int) string {
	width = clampWidth(width)
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("%s  FAILED  ─  %s", FailureMarker, title)),
		"",
	}
	if err != nil {
		lines = append(lines, ErrorMessageStyle.Width(width-8).Render("Error: "+err.Error()), "")
		if hint := wlan.Hint(err); hint != "" {
			lines = append(lines, HintStyle.Width(width-8).Render(hint), "")
		}
		if wlan.Retryable(err) {
			lines = append(lines, HintStyle.Width(width-8).Render(RetryNote), "")
		}
	}
	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderScanTable renders scan results as a table, strongest first as
// given.
func RenderScanTable(results []wlan.ScanResult) string {
	if len(results) == 0 {
		return HintStyle.Render("No networks found.")
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.SSID, r.Security.String(), strconv.Itoa(int(r.RSSI)), signalBar(r.RSSI)})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers("SSID", "SECURITY", "RSSI", "SIGNAL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}

// signalBar maps the chip's 7-bit RSSI to a four-step bar.
func signalBar(rssi uint8) string {
	n := int(rssi) * 4 / 128
	if n > 4 {
		n = 4
	}
	return strings.Repeat("▮", n) + strings.Repeat("▯", 4-n)
}

// StatusDetails lists the link flags and chip status for a result box.
func StatusDetails(snap linkstate.Snapshot, status transport.ChipStatus) []Detail {
	details := []Detail{
		{"Chip", status.String()},
		{"Link", RenderFlag(snap.LinkUp, "up", "down")},
		{"DHCP", RenderFlag(snap.DHCPBound, "bound", "no lease")},
	}
	if snap.PingReports > 0 {
		details = append(details, Detail{"Ping reports", strconv.FormatUint(uint64(snap.PingReports), 10)})
	}
	if len(snap.ClosedSockets) > 0 {
		sds := make([]string, len(snap.ClosedSockets))
		for i, sd := range snap.ClosedSockets {
			sds[i] = strconv.Itoa(int(sd))
		}
		details = append(details, Detail{"Peer closed", strings.Join(sds, ", ")})
	}
	return details
}

// AddressDetails lists an address configuration for a result box.
func AddressDetails(cfg wlan.AddressConfig) []Detail {
	return []Detail{
		{"SSID", cfg.SSID},
		{"IP", cfg.IP.String()},
		{"Netmask", cfg.Netmask.String()},
		{"Gateway", cfg.Gateway.String()},
		{"DHCP server", cfg.DHCPServer.String()},
		{"DNS server", cfg.DNSServer.String()},
		{"MAC", cfg.MAC.String()},
	}
}

// Printer prints UI components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the width this printer renders at
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Detail) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box
func (p *Printer) PrintError(title string, err error) {
	p.Println(RenderErrorBox(title, err, p.width))
}

// PrintWarning prints a one-line warning.
func (p *Printer) PrintWarning(msg string) {
	p.Println(lipgloss.NewStyle().Foreground(WarningColor).Render(WarningMarker + "  " + msg))
}
