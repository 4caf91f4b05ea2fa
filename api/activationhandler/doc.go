// Package activationhandler implements the device-facing HTTP endpoints of
// the activation backend and a client for them.
//
// Key components:
//   - Handler: decodes requests, runs the activation.Orchestrator and hands the
//     returned events to the activation.Dispatcher
//   - Client: calls the endpoints from device simulators and integration tests
package activationhandler
