// Package main provides the entry point for tokmesh-server.
//
// The server is the core per-node process for a tokmesh cluster: it
// serves RESP commands on the client port, gossips and replicates over
// the cluster-bus port (client port + 10000), and exposes a small
// ClusterAdmin RPC surface for the admin CLI.
//
// Usage:
//
//	tokmesh-server --config /path/to/node.conf
package main
