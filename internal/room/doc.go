// Package room orchestrates portfolio room creation across the text
// generator, the wallet resolver and the agent runtime, and serves room
// messages, listings and transaction history.
package room
