// Package protocol implements the bridge wire format.
//
// A bridge daemon owns a chip and exposes its host-driver surface to one
// remote host over a websocket. Every websocket binary message carries one
// frame:
//   - Frame sync byte: 0x7e
//   - Protocol version: 0x01
//   - Kind: request, response or event
//   - Sequence number: 4 bytes (little-endian)
//   - Op: length-prefixed command name (transport.Op*)
//   - Payload length: 2 bytes (little-endian)
//   - Payload: JSON
//   - Checksum: 1 byte (XOR of all preceding bytes)
//
// # Requests and Responses
//
// Each chip command is one request. The bridge answers with a response of the
// same sequence number carrying the chip status code and the command result:
//
//	req, _ := protocol.NewRequest(transport.OpConnect, protocol.ConnectArgs{
//	    Security: transport.SecurityWPA2,
//	    SSID:     "home",
//	    Key:      []byte("secret"),
//	})
//	data, _ := req.MarshalBinary()
//	conn.WriteMessage(websocket.BinaryMessage, data)
//
// On the bridge side Dispatch decodes the request, runs it against the chip
// and builds the response.
//
// # Events
//
// Chip events are only produced while the bridge serves a poll request. They
// are written as event frames ahead of the poll response, so a client sees
// every event raised by its poll before the poll itself completes.
//
// # Thread Safety
//
// Encoding and decoding are stateless. Sequence numbers come from an atomic
// counter.
package protocol
