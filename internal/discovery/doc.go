// Package discovery finds bridge daemons on the local network over mDNS.
//
// A bridge announces itself as a "_simplelink._tcp" service. The instance
// name identifies the bridge and TXT records carry the websocket path, the
// chip kind and whether the endpoint speaks TLS.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 3 * time.Second
//	bridges, err := scanner.ScanForBridges(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range bridges {
//	    fmt.Println(b.Name, b.URL())
//	}
//
// A bridge registers itself with Register and withdraws with Shutdown:
//
//	ad, err := discovery.Register("kitchen", 7681, map[string]string{"path": "/bridge"})
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
// Tests with live multicast traffic need network access and are not part of
// the default test run.
package discovery
