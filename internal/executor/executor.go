// Package executor implements the per-connection command loop of §4.8:
// authentication, health gating, command-table dispatch, MOVED conversion,
// and AOF append plus replica fan-out for mutating commands.
package executor

import (
	"context"
	"strings"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusterconfig"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clustererr"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/pubsub"
	"github.com/tokmesh/cluster/internal/storage/aof"
)

// Sender fans InnerRedisCommand out to replicas.
type Sender interface {
	Send(ctx context.Context, to clusterid.NodeId, msg bus.Message) error
}

// Executor dispatches client commands against one Node's storage. One
// Executor is shared across all client sessions on a node; per-connection
// state (auth, subscriber identity) lives in the caller.
type Executor struct {
	node   *clusternode.Node
	users  *clusterconfig.Users
	broker *pubsub.Broker
	sender Sender
}

// New constructs an Executor. users may be nil to disable authentication
// (no users_file configured).
func New(node *clusternode.Node, users *clusterconfig.Users, broker *pubsub.Broker, sender Sender) *Executor {
	return &Executor{node: node, users: users, broker: broker, sender: sender}
}

// RequiresAuth reports whether AUTH must precede other commands.
func (e *Executor) RequiresAuth() bool { return e.users != nil }

// Authenticate implements AUTH user pass.
func (e *Executor) Authenticate(user, pass string) bool {
	if e.users == nil {
		return true
	}
	return e.users.Authenticate(user, pass)
}

// Execute runs one client command, applying the ownership check, the AOF
// append, and the InnerRedisCommand replica fan-out for mutating commands.
// It does not itself gate on authentication — callers apply RequiresAuth.
// client/sub identify the calling connection for pub/sub commands; pass the
// zero ClientID and a nil Subscriber for connections that never subscribe.
func (e *Executor) Execute(ctx context.Context, client pubsub.ClientID, sub pubsub.Subscriber, tokens []string) (any, error) {
	if len(tokens) == 0 {
		return nil, errUnknownCommand("")
	}

	if e.node.ClusterState() == neighbor.StateFail {
		return nil, errClusterDown()
	}
	if e.node.Status() == clusternode.StatusFail {
		return nil, errNodeDown()
	}

	name := strings.ToUpper(tokens[0])
	if name == "PING" {
		return SimpleString("PONG"), nil
	}
	if name == "CLUSTER" {
		return e.dispatchCluster(tokens)
	}

	if isPubSubCommand(name) {
		return e.dispatchPubSub(client, sub, name, tokens)
	}

	cmd, ok := commandTable[name]
	if !ok {
		return nil, errUnknownCommand(tokens[0])
	}
	if len(tokens) < cmd.minArgs {
		return nil, errWrongNumArgs(strings.ToLower(name))
	}

	reply, err := cmd.handler(e.node.Storage, tokens)
	if err != nil {
		if moved, ok := err.(*clustererr.MovedError); ok {
			return nil, moved
		}
		return nil, err
	}

	if cmd.mutable {
		if e.node.AOF != nil {
			if aofErr := e.node.AOF.Append(tokens, cmd.dataIndices); aofErr != nil {
				return nil, &CommandError{Code: "ERR", Message: "AOF write failed: " + aofErr.Error()}
			}
		}
		e.node.IncrReplicationOffset()
		e.fanOutToReplicas(ctx, tokens)
	}

	return reply, nil
}

// ExecuteReplica implements the replica-side entry point named in §4.8: the
// same handlers, applied without ownership validation (the master already
// validated and ordered it) or fan-out.
func (e *Executor) ExecuteReplica(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	name := strings.ToUpper(tokens[0])
	cmd, ok := commandTable[name]
	if !ok || !cmd.mutable {
		return nil
	}
	_, err := cmd.handler(e.node.Storage, tokens)
	if err != nil {
		if _, ok := err.(*clustererr.MovedError); ok {
			return nil
		}
		return err
	}
	e.node.IncrReplicationOffset()
	return nil
}

func (e *Executor) fanOutToReplicas(ctx context.Context, tokens []string) {
	replicas := e.node.Replicas()
	if len(replicas) == 0 || e.sender == nil {
		return
	}
	msg := bus.Message{
		Header: bus.Header{
			Kind:         bus.KindRedisCommand,
			Sender:       e.node.Self.ID,
			CurrentEpoch: e.node.CurrentEpoch.Load(),
			ConfigEpoch:  e.node.ConfigEpoch.Load(),
			SenderSlots:  e.node.Storage.SlotRange(),
			ClusterState: e.node.ClusterState(),
		},
		Payload: bus.RedisCommandPayload{Tokens: tokens},
	}
	for _, r := range replicas {
		_ = e.sender.Send(ctx, r, msg)
	}
}

// DataIndexLookup exposes the command table as an aof.DataIndexLookup, so
// the AOF replay path on startup shares the exact same table the live
// executor uses.
func DataIndexLookup() aof.DataIndexLookup {
	return dataIndexLookup
}
