// Package events implements the engine's notification log.
//
// Every successful mutating operation appends one or more events to an
// append-only log. Consumers (database writers, the websocket feed) attach
// buffered subscriptions so a slow consumer never blocks the publishing
// operation, and can replay the log from any sequence number to rebuild
// order-book and balance state from genesis.
package events
