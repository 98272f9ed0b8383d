// Package config loads the inkaswap JSON configuration (network file
// location, record storage, pending transaction queue, logging and metrics)
// and the wallet secrets, which are read from the environment or a .env file
// and never from the configuration itself.
package config
