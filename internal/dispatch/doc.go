// Package dispatch executes wallet actions for rooms.
//
// Every accepted action is written to the transaction ledger as pending before
// its handler runs and is moved to success or failed afterwards. Unknown
// actions, malformed parameters and rooms without a wallet are rejected before
// the ledger is touched.
package dispatch
