// Package connection keeps a display connected to the broadcast relay.
//
// The Manager owns a single WebSocket Client and cycles through
// Connecting, Open and ClosedRetrying until Stop:
//   - On open it sends exactly one join frame for its channel
//   - Inbound payloads that are not JSON are logged and dropped
//   - Everything else is forwarded verbatim on Messages()
//   - On close or error it waits a fixed ReconnectDelay and dials again
//
// There is no backoff and no retry limit; the relay is expected to come
// back.
package connection
