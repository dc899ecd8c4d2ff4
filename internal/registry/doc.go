// Package registry implements the SCPI share registry.
//
// The registry owns per-asset metadata and per-holder share balances. Direct
// peer-to-peer transfers are blocked; shares move only when the registered
// marketplace requests it or when an issuer distributes its own inventory.
// Every mutation appends a notification to the event log.
package registry
