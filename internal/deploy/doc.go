// Package deploy runs contract migrations: it reads truffle build
// artifacts, deploys them with the network's wallet, waits for the creation
// receipt and records each deployment so that a migration already applied
// to a network is not repeated.
package deploy
