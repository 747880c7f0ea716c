// Package types defines identifiers, relation metadata, change and sync
// states, configuration and the standard errors shared by the relgraph
// packages. It has no dependencies on the rest of the module.
// See internal/endpoint for the relation end-point engine built on it.
package types
