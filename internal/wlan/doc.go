// Package wlan is the connection manager and socket client for a SimpleLink
// WiFi co-processor.
//
// A Manager wraps a transport.Transport and owns the linkstate.State that
// the transport's events are projected onto. All waiting is done with the
// bounded poll-wait: poll the transport (which runs pending event
// callbacks), re-check a link flag, sleep one PollInterval on the Config's
// Clock, and give up with a Timeout error once the budget is spent.
//
// # Bring-up and Association
//
//	m := wlan.New(t, wlan.DefaultConfig())
//	if err := m.BringUp(ctx, wlan.BringUpOptions{}); err != nil {
//	    return err
//	}
//	err := m.ConnectWithRetry(ctx, wlan.Credentials{
//	    SSID:     "home",
//	    Key:      "secret",
//	    Security: transport.SecurityWPA2,
//	})
//
// ConnectWithRetry never gives up on its own. Bound it with the context.
//
// # Provisioning
//
// StartProvisioning opens the SmartConfig window and waits for a phone app to
// send credentials, then reconnects from the provisioned profile.
//
// # Sockets
//
// ConnectTCP and ConnectUDP return a *Client that owns the chip socket:
//
//	c, err := m.ConnectTCP(ip, 80)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	c.WriteLine("GET / HTTP/1.0")
//	for c.Connected() {
//	    for c.Available() > 0 {
//	        b, _ := c.ReadByte()
//	        os.Stdout.Write([]byte{b})
//	    }
//	}
//
// A peer close arrives as an event. Connected reports false only after the
// buffered bytes are drained, then releases the handle.
//
// # Errors
//
// Operations return *Error values classified by ErrorType; use IsTimeout,
// IsTransport, IsNotInitialized and friends to branch on them.
package wlan
