// Package eventbus implements the typed publish/subscribe registry.
//
// The bus:
//   - Fans emitted payloads out to subscribers synchronously, in
//     registration order
//   - Supports batched delivery (flush at size threshold or delay)
//   - Supports trailing-edge throttled delivery for noisy topics
//   - Isolates subscriber failures from sibling subscribers
//
// It has no knowledge of the network; the connection runtime pushes
// normalized inbound events onto it.
package eventbus
