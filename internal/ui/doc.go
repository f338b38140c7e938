// Package ui renders slctl output with Lipgloss and runs the live link
// watch with Bubble Tea.
//
// Most commands print once and exit through a Printer: a header box, then
// a success or error box. Error boxes carry the troubleshooting hint of
// wlan errors. Scan results render as a table.
//
//	p := ui.NewPrinter(nil)
//	p.PrintHeader("Network Scan", "slctl scan")
//	p.Println(ui.RenderScanTable(results))
//
// The watch view polls a Source on a fixed interval and logs link, DHCP
// and chip status changes:
//
//	err := ui.Watch(manager, 250*time.Millisecond)
//
// # Logging Integration
//
// zap logging stays silent unless SIMPLELINK_LOG_LEVEL is set, so the
// rendered output is not interleaved with log lines.
package ui
