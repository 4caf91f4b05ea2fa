// Command activation-server runs the device activation backend: the device
// API, the operator API and the metrics server.
//
// Every flag can also be set through an ACTIVATION_* environment variable,
// for example ACTIVATION_DB_DSN or ACTIVATION_VIN_ENABLED.
package main
