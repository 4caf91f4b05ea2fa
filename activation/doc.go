// Package activation contains the device activation decision engine.
//
// The Orchestrator locates the factory record for a request, verifies the
// qualifier (or the pre-shared key on the activation-id path), applies the
// lifecycle rules and hands credential work to the Issuer. Every call takes
// an explicit Config so feature flags never come from global state.
//
// Side effects beyond local storage and credential registration are not
// performed by the Orchestrator. It returns typed Events, and a Dispatcher
// delivers them to the notification and event-publishing collaborators.
package activation
