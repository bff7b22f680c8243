// Package connection provides connection management for tokmesh-cli.
//
// This package tracks which admin server the CLI is currently targeting
// and builds the Connect RPC client used to reach it:
//
//   - manager.go: current-target tracking
//   - client.go: ClusterAdmin Connect RPC client construction
package connection
