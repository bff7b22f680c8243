// Package main provides the entry point for tokmesh-cli.
//
// tokmesh-cli is a small command-line client for a node's ClusterAdmin RPC
// surface:
//
//   - cluster info: this node's cluster state
//   - cluster nodes: known cluster neighbors
//   - cluster meet HOST:PORT: introduce a node by address
//
// Usage:
//
//	tokmesh-cli --server localhost:25080 cluster info
//	tokmesh-cli -o json cluster nodes
//	tokmesh-cli cluster meet 10.0.0.5:25080
package main
