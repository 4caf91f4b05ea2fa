/*
Package httpserver runs the HTTP listeners of the device activation backend.

A Server owns three listeners:

  - the API listener, carrying the device activation routes plus /livez,
    /readyz, /drain and /undrain (and /debug when pprof is enabled)
  - an optional admin listener for the operator routes
  - the Prometheus metrics listener

Every route is wrapped with the flashbots httplogger access log, a latency
observer and panic recovery.

# Draining

GET /drain flips readiness to false and holds the request for the configured
drain duration, so a load balancer polling /readyz stops routing before the
process is told to shut down. GET /undrain reverses it.
*/
package httpserver
