// Package api provides the client for the order backend's REST surface.
//
// Endpoints:
//   - GET  /api/kds              today's board entries
//   - GET  /get-stages           stage definitions (cached)
//   - POST /api/kds/{id}         partial update of one board entry
//   - POST /update-order-state   domain state transition (done, cancel)
//
// Every call carries the display's X-API-Token. 401 and 403 responses are
// authentication errors and are never retried.
package api
