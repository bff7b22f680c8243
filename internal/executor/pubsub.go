package executor

import (
	"strings"

	"github.com/tokmesh/cluster/internal/pubsub"
)

func isPubSubCommand(name string) bool {
	switch name {
	case "SUBSCRIBE", "PSUBSCRIBE", "SSUBSCRIBE",
		"UNSUBSCRIBE", "PUNSUBSCRIBE", "SUNSUBSCRIBE",
		"PUBLISH", "SPUBLISH", "PUBSUB":
		return true
	default:
		return false
	}
}

func (e *Executor) dispatchPubSub(client pubsub.ClientID, sub pubsub.Subscriber, name string, tokens []string) (any, error) {
	args := tokens[1:]
	switch name {
	case "SUBSCRIBE":
		if len(args) == 0 {
			return nil, errWrongNumArgs("subscribe")
		}
		return envelopes(e.broker.Subscribe(client, sub, args)), nil
	case "PSUBSCRIBE":
		if len(args) == 0 {
			return nil, errWrongNumArgs("psubscribe")
		}
		return envelopes(e.broker.PSubscribe(client, sub, args)), nil
	case "SSUBSCRIBE":
		if len(args) == 0 {
			return nil, errWrongNumArgs("ssubscribe")
		}
		results := e.broker.SSubscribe(client, sub, args)
		out := make([]any, len(results))
		for i, r := range results {
			if r.Moved != nil {
				out[i] = r.Moved
			} else {
				out[i] = r.Envelope
			}
		}
		return out, nil
	case "UNSUBSCRIBE":
		return envelopes(e.broker.Unsubscribe(client, args)), nil
	case "PUNSUBSCRIBE":
		return envelopes(e.broker.PUnsubscribe(client, args)), nil
	case "SUNSUBSCRIBE":
		return envelopes(e.broker.SUnsubscribe(client, args)), nil
	case "PUBLISH":
		if len(args) != 2 {
			return nil, errWrongNumArgs("publish")
		}
		count := e.broker.Publish(args[0], args[1])
		e.fanOutPubSub(tokens)
		return int64(count), nil
	case "SPUBLISH":
		if len(args) != 2 {
			return nil, errWrongNumArgs("spublish")
		}
		count := e.broker.SPublish(args[0], args[1])
		e.fanOutPubSub(tokens)
		return int64(count), nil
	case "PUBSUB":
		return e.pubsubSubcommand(args)
	default:
		return nil, errUnknownCommand(name)
	}
}

func (e *Executor) pubsubSubcommand(args []string) (any, error) {
	if len(args) == 0 {
		return nil, errWrongNumArgs("pubsub")
	}
	switch strings.ToUpper(args[0]) {
	case "CHANNELS":
		pattern := ""
		if len(args) > 1 {
			pattern = args[1]
		}
		names := e.broker.Channels(pattern)
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = []byte(n)
		}
		return out, nil
	case "NUMSUB":
		counts := e.broker.NumSub(args[1:])
		out := make([]any, 0, len(counts)*2)
		for _, name := range args[1:] {
			out = append(out, []byte(name), int64(counts[name]))
		}
		return out, nil
	case "NUMPAT":
		return int64(e.broker.NumPat()), nil
	case "SHARDCHANNELS":
		names := e.broker.ShardChannels()
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = []byte(n)
		}
		return out, nil
	case "SHARDNUMSUB":
		counts := e.broker.ShardNumSub(args[1:])
		out := make([]any, 0, len(counts)*2)
		for _, name := range args[1:] {
			out = append(out, []byte(name), int64(counts[name]))
		}
		return out, nil
	default:
		return nil, errSyntax()
	}
}

// fanOutPubSub implements the InnerPubSub rule of §4.6: propagate to every
// known node as a bus PubSub frame. The router owns outgoing_streams, so
// this only submits through the same Sender the executor already holds —
// a best-effort per-neighbor send, matching the back-pressure policy of §5.
func (e *Executor) fanOutPubSub(tokens []string) {
	if e.sender == nil {
		return
	}
	// The bus Sender interface only addresses a single neighbor. The frame
	// is propagated only when the Sender also implements broadcastSender;
	// otherwise nothing is sent and only local subscribers see the message.
	if broadcaster, ok := e.sender.(broadcastSender); ok {
		broadcaster.BroadcastPubSub(tokens)
	}
}

// broadcastSender is an optional capability a Sender may implement to reach
// every known node rather than only replicas.
type broadcastSender interface {
	BroadcastPubSub(tokens []string)
}

func envelopes(in [][]any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}
