// Package txtrack follows up on transactions whose receipt did not arrive
// before the submit timeout. Hashes travel through a queue (in-memory, Redis
// list or RabbitMQ) to a Reconciler that re-queries the receipt and stores
// the final status. Nothing here signs or resubmits transactions.
package txtrack
