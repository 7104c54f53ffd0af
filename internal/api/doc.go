// Package api implements the HTTP surface of the docsage server.
//
// Endpoints:
//   - POST /api/chat        - ask a question; answer streamed over SSE
//   - GET  /api/filter      - read the document filter flag
//   - POST /api/filter      - set the document filter flag
//   - GET  /api/documents   - list ingested documents
//   - DELETE /api/documents/{name} - remove one document's chunks
//   - GET  /health, /ready  - probes
//
// The chat stream uses data-only SSE frames: an empty-token frame on open,
// one frame per generated token, at most one sourceDocs frame, and a literal
// [DONE] sentinel before close. Generation failures are logged server-side
// and the stream still terminates with the sentinel; clients observe a
// possibly-empty answer, never an error frame.
//
// Middleware stack (outermost first):
// Recovery → RequestID → Logging → CORS → RateLimit → Routes.
// Health probes bypass the stack via a top-level mux.
package api
