// Package web3 holds the EVM-side helpers used by wallet actions: the
// per-network token table, ERC-20 calldata encoding, decimal unit conversion
// and the read-only chain reader abstraction implemented in the ethereum
// sub-package.
package web3
