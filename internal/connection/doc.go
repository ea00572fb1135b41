// Package connection implements the resilient connection runtime.
//
// The runtime:
//   - Maintains a single long-lived bidirectional channel to the server
//   - Handles reconnection with exponential backoff and a bounded
//     attempt budget
//   - Buffers outbound sends made while disconnected and replays them
//     on reconnect
//   - Measures round-trip latency with a periodic heartbeat
//   - Normalizes inbound events onto the event bus
package connection
