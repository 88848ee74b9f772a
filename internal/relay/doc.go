// Package relay maintains courier's single outbound WebSocket connection to
// the Pioneer relay endpoint.
//
// The Manager is a three-state machine:
//
//	Disconnected --connect--> Connecting --handshake ok--> Open
//	     ^                         |                         |
//	     +------ dial failed ------+------ read/write error -+
//
// Every transition back to Disconnected schedules exactly one reconnect after
// the current backoff delay; the delay doubles up to a ceiling and resets on a
// successful handshake. Send is best-effort: events are written only while the
// connection is Open and are otherwise dropped, never queued.
//
// Example Usage:
//
//	mgr := relay.NewManager(relay.Config{URL: "ws://127.0.0.1:45000/ws"}, relay.WithLogger(log))
//	mgr.Start(ctx)
//	defer mgr.Close()
//	mgr.Send(relay.NewContextEvent(42, "engineering", "Work"))
package relay
