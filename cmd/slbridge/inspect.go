package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/muurk/simplelink/internal/bridge"
	"github.com/muurk/simplelink/internal/protocol"
	"github.com/muurk/simplelink/internal/ui"
)

var dumpFrames bool

func init() {
	inspectCmd.Flags().BoolVar(&dumpFrames, "dump", false, "Hex dump every frame")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <capture.jsonl>",
	Short: "Summarize a frame capture",
	Long: `Read a capture written by 'slbridge serve --capture', re-validate every
frame and print the exchange with per-op call counts, failures and latency.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		report, err := analyzeCapture(f)
		if err != nil {
			return err
		}
		printReport(os.Stdout, args[0], report, dumpFrames)
		return nil
	},
}

// frameRecord is one capture line with its frame decoded again from the raw
// bytes.
type frameRecord struct {
	bridge.FrameCapture
	raw   []byte
	frame *protocol.Frame
	err   error
	code  int32
}

// opStats aggregates the requests seen for one op.
type opStats struct {
	Calls    int
	Failures int
	Total    time.Duration
	Max      time.Duration
	answered int
}

// Mean is the average request to response latency.
func (s *opStats) Mean() time.Duration {
	if s.answered == 0 {
		return 0
	}
	return s.Total / time.Duration(s.answered)
}

type captureReport struct {
	Records    []*frameRecord
	Ops        map[string]*opStats
	Events     map[string]int
	Invalid    int
	Unanswered int
}

func analyzeCapture(r io.Reader) (*captureReport, error) {
	report := &captureReport{
		Ops:    make(map[string]*opStats),
		Events: make(map[string]int),
	}
	pending := make(map[uint32]*frameRecord)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		rec := &frameRecord{}
		if err := json.Unmarshal(sc.Bytes(), &rec.FrameCapture); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		report.Records = append(report.Records, rec)

		rec.raw, rec.err = hex.DecodeString(rec.RawHex)
		if rec.err == nil {
			rec.frame, rec.err = protocol.ParseFrame(rec.raw)
		}
		if rec.err != nil {
			report.Invalid++
			continue
		}

		switch rec.frame.Kind {
		case protocol.KindRequest:
			st := report.Ops[rec.frame.Op]
			if st == nil {
				st = &opStats{}
				report.Ops[rec.frame.Op] = st
			}
			st.Calls++
			pending[rec.frame.Seq] = rec
		case protocol.KindResponse:
			var resp protocol.Response
			if err := json.Unmarshal(rec.frame.Payload, &resp); err == nil {
				rec.code = resp.Code
			}
			req, ok := pending[rec.frame.Seq]
			if !ok {
				continue
			}
			delete(pending, rec.frame.Seq)
			st := report.Ops[req.frame.Op]
			if rec.code < 0 {
				st.Failures++
			}
			d := rec.Timestamp.Sub(req.Timestamp)
			st.Total += d
			st.answered++
			if d > st.Max {
				st.Max = d
			}
		case protocol.KindEvent:
			report.Events[rec.frame.Op]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	report.Unanswered = len(pending)
	return report, nil
}

func printReport(w io.Writer, name string, report *captureReport, dump bool) {
	fmt.Fprintf(w, "Capture: %s\n", name)
	fmt.Fprintf(w, "Frames:  %d (%d invalid, %d requests unanswered)\n\n",
		len(report.Records), report.Invalid, report.Unanswered)

	for _, rec := range report.Records {
		fmt.Fprintln(w, describe(rec))
		if dump && rec.raw != nil {
			hexDump(w, rec.raw)
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)

	ops := make([]string, 0, len(report.Ops))
	for op := range report.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		st := report.Ops[op]
		rows = append(rows, []string{
			op,
			strconv.Itoa(st.Calls),
			strconv.Itoa(st.Failures),
			st.Mean().Round(time.Microsecond).String(),
			st.Max.Round(time.Microsecond).String(),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(ui.MutedColor)).
			Headers("OP", "CALLS", "FAILED", "MEAN", "MAX").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return ui.TableHeaderStyle
				}
				return ui.TableCellStyle
			}).
			Render())
	}

	if len(report.Events) > 0 {
		kinds := make([]string, 0, len(report.Events))
		for k := range report.Events {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "\nEvents:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-20s %d\n", k, report.Events[k])
		}
	}
}

func describe(rec *frameRecord) string {
	prefix := fmt.Sprintf("#%-4d %s %-12s", rec.MessageNum, rec.Timestamp.Format("15:04:05.000"), rec.Direction)
	if rec.err != nil {
		return fmt.Sprintf("%s INVALID %v", prefix, rec.err)
	}
	f := rec.frame
	switch f.Kind {
	case protocol.KindResponse:
		return fmt.Sprintf("%s %-8s seq=%-5d %-18s code=%d", prefix, f.Kind, f.Seq, f.Op, rec.code)
	case protocol.KindEvent:
		return fmt.Sprintf("%s %-8s %-28s %s", prefix, f.Kind, f.Op, f.Payload)
	default:
		return fmt.Sprintf("%s %-8s seq=%-5d %-18s %s", prefix, f.Kind, f.Seq, f.Op, f.Payload)
	}
}

// hexDump writes 16 bytes per line with an ASCII column.
func hexDump(w io.Writer, data []byte) {
	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(w, "      %04x  ", i)
		for j := 0; j < 16; j++ {
			if i+j < len(data) {
				fmt.Fprintf(w, "%02x ", data[i+j])
			} else {
				fmt.Fprint(w, "   ")
			}
			if j == 7 {
				fmt.Fprint(w, " ")
			}
		}
		fmt.Fprint(w, " |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			if b := data[i+j]; b >= 32 && b <= 126 {
				fmt.Fprintf(w, "%c", b)
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w, "|")
	}
}
