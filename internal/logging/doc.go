// Package logging provides structured logging for the SimpleLink host layer.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the connection manager, the transports and the bridge
// daemon.
//
// # Log Levels
//
//   - Debug: chip events, transport calls, bridge frames, raw socket bytes
//   - Info: bring-up, association, bridge sessions
//   - Warn: failed transport calls, poll errors inside bounded waits
//   - Error: daemon failures
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Associated",
//	    zap.String("ssid", "home"),
//	    zap.Duration("elapsed", elapsed),
//	)
//
// # Specialized Logging
//
// Chip events, as delivered by Poll:
//
//	logging.LogChipEvent("peer_close", zap.Int32("socket", 3))
//
// Host-driver commands:
//
//	logging.LogTransportCall("wlan_connect", err)
//
// Bridge traffic:
//
//	logging.LogBridgeFrame(remoteAddr, "received", "recv", payload)
//	logging.LogConnection(remoteAddr, "session_opened")
//
// # Configuration
//
// Logging is silent unless a level is given or SIMPLELINK_LOG_LEVEL is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Output Format
//
// Logs are written to stderr in console format so they never mix with
// command output on stdout.
package logging
