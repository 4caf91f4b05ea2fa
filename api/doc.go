/*
Package api holds the wire types shared by the HTTP handlers and clients of the
device activation backend.

Subpackages:

1. activation - device-facing activation endpoints and a Go client for them
2. admin - operator endpoints for readiness, associations and deactivation

Request types are mapped to activation package values with explicit
functions; no handler passes JSON types into the decision engine.

# Error mapping

Errors are mapped to status codes by interfaces.KindOf:

  - validation failed: 400
  - resource not found: 404
  - precondition failed: 412
  - duplicate activation: 409
  - data integrity and technical: 500
  - partial failure (local commit, registration failed): 502, body carries the device id
*/
package api
