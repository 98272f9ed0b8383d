// Package mysql persists deployment and transaction records. Two
// implementations share one interface: a JSON-lines file store for local
// work and a MySQL store with embedded schema migrations.
package mysql
