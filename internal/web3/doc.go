// Package web3 houses blockchain connectivity shared by the contract binding,
// the wallet signer and the transaction submitter: the endpoint abstraction,
// the unsigned transaction request model and the per-network definitions
// (RPC endpoints, chain IDs, deployment parameters) loaded from YAML.
package web3
