// Package command provides CLI command definitions for tokmesh-cli.
package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/urfave/cli/v2"

	v1 "github.com/tokmesh/cluster/api/proto/v1"
	"github.com/tokmesh/cluster/internal/cli/output"
)

// ClusterCommand returns the cluster subcommand group, wrapping the
// ClusterAdmin RPC surface (Info, Nodes, Meet).
func ClusterCommand() *cli.Command {
	return &cli.Command{
		Name:    "cluster",
		Aliases: []string{"c"},
		Usage:   "Cluster administration commands",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show this node's cluster state",
				Action: clusterInfo,
			},
			{
				Name:   "nodes",
				Usage:  "List known cluster nodes",
				Action: clusterNodes,
			},
			{
				Name:      "meet",
				Usage:     "Introduce a node to the cluster by address",
				ArgsUsage: "HOST:PORT",
				Action:    clusterMeet,
			},
		},
	}
}

func clusterInfo(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	client := GetAdminClient(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Info(ctx, connect.NewRequest(&v1.InfoRequest{}))
	if err != nil {
		return fmt.Errorf("info request failed: %w", err)
	}

	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, resp.Msg)
}

func clusterNodes(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	client := GetAdminClient(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Nodes(ctx, connect.NewRequest(&v1.NodesRequest{}))
	if err != nil {
		return fmt.Errorf("nodes request failed: %w", err)
	}

	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, resp.Msg.Nodes)
}

func clusterMeet(c *cli.Context) error {
	addr := c.Args().First()
	if addr == "" {
		return fmt.Errorf("usage: tokmesh-cli cluster meet HOST:PORT")
	}

	client := GetAdminClient(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Meet(ctx, connect.NewRequest(&v1.MeetRequest{Address: addr}))
	if err != nil {
		return fmt.Errorf("meet request failed: %w", err)
	}
	if !resp.Msg.Accepted {
		return fmt.Errorf("meet not accepted by server")
	}

	fmt.Printf("meet dispatched to %s\n", addr)
	return nil
}
