package wlan

import (
	"context"
	"time"

	"github.com/muurk/simplelink/internal/transport"
)

// ScanResult is one decoded entry of the chip's scan table.
type ScanResult struct {
	RSSI     uint8
	Security transport.Security
	SSID     string
	Valid    bool
}

// Scan starts a chip-side scan lasting durationMs. Zero aborts the running
// scan.
func (m *Manager) Scan(durationMs uint32) error {
	const op = "scan"
	if !m.initialized.Load() {
		return NewNotInitializedError(op)
	}
	params := transport.DefaultScanParams(time.Duration(durationMs) * time.Millisecond)
	return m.runSteps(op, []step{{transport.OpSetScanParams, func() error {
		return m.t.SetScanParams(params)
	}}})
}

// StopScan aborts the running scan.
func (m *Manager) StopScan() error {
	return m.Scan(0)
}

// StartScan runs a ScanDuration scan, waits ScanWait for results and loads
// the first record into the cursor. It returns the number of networks found.
func (m *Manager) StartScan(ctx context.Context) (int, error) {
	const op = "start scan"
	if !m.initialized.Load() {
		return 0, NewNotInitializedError(op)
	}
	if err := m.Scan(uint32(m.cfg.ScanDuration / time.Millisecond)); err != nil {
		return 0, err
	}
	if err := m.sleep(ctx, op, m.cfg.ScanWait); err != nil {
		return 0, err
	}
	if err := m.fetchScanRecord(op); err != nil {
		return 0, err
	}
	return int(m.scanRecord.NetworkCount), nil
}

// NextScanResult decodes the record under the cursor and advances the
// cursor to the chip's next record. The cursor is shared; callers must not
// interleave listings.
func (m *Manager) NextScanResult() (ScanResult, error) {
	const op = "next scan result"
	if !m.initialized.Load() {
		return ScanResult{}, NewNotInitializedError(op)
	}
	rec := m.scanRecord
	res := ScanResult{
		RSSI:     rec.RSSI(),
		Security: rec.Security(),
		SSID:     rec.SSIDName(),
		Valid:    rec.Valid(),
	}
	if err := m.fetchScanRecord(op); err != nil {
		return res, err
	}
	return res, nil
}

// ScanNetworks runs StartScan and drains the cursor. Invalid records are
// skipped.
func (m *Manager) ScanNetworks(ctx context.Context) ([]ScanResult, error) {
	n, err := m.StartScan(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ScanResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := m.NextScanResult()
		if res.Valid {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (m *Manager) fetchScanRecord(op string) error {
	return m.runSteps(op, []step{{transport.OpScanResult, func() error {
		rec, err := m.t.ScanResult()
		if err != nil {
			return err
		}
		m.scanRecord = rec
		return nil
	}}})
}
