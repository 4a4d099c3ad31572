// Package types defines the external key-value store contract, change
// notifications, backend configuration, and the standard errors shared by
// the kvsync cell and its store backends.
package types
