// Package adminhandler implements the operator HTTP API: readiness,
// associations, deactivation, device status and factory record import.
// AdminClient is its Go client, used by the activation-client CLI.
//
// The admin routes carry no authentication of their own and are expected to
// be served on an internal listener.
package adminhandler
