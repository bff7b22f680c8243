// Package command provides CLI command definitions for tokmesh-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, admin client construction
//   - cluster.go: Cluster subcommand group (info, nodes, meet)
//
// Commands follow a consistent pattern of parsing flags, calling the
// ClusterAdmin RPC, and formatting output via internal/cli/output.
package command
