// Package pubsub implements the mutex-guarded channel/pattern/shard
// broker of §4.7: SUBSCRIBE and friends, PUBLISH fanout, and the
// shard-channel MOVED placeholder used by the cluster router.
package pubsub

import (
	"sync"

	"github.com/tokmesh/cluster/internal/core/clustererr"
	"github.com/tokmesh/cluster/internal/core/clusterid"
)

// ClientID identifies a subscribing connection.
type ClientID uint64

// Subscriber receives delivery envelopes. Implemented by the respserver
// client session.
type Subscriber interface {
	Deliver(envelope []any) error
}

type subscriberSet map[ClientID]Subscriber

// Broker owns the three subscription maps and a mutex, serializing every
// operation through this lock rather than a dedicated goroutine. Client
// sessions (through the executor) and the router call it concurrently.
type Broker struct {
	mu        sync.Mutex
	channels  map[string]subscriberSet
	pchannels map[string]subscriberSet
	schannels map[string]subscriberSet

	// subs tracks, per client, which names it holds in each map, so
	// UnsubscribeAll and teardown don't need to scan every channel.
	clientChannels  map[ClientID]map[string]bool
	clientPatterns  map[ClientID]map[string]bool
	clientSChannels map[ClientID]map[string]bool

	ownsSlot func(clusterid.Slot) bool
}

// New constructs an empty Broker. ownsSlot reports whether a slot belongs
// to this node's current range, used by SPUBLISH/SSUBSCRIBE.
func New(ownsSlot func(clusterid.Slot) bool) *Broker {
	return &Broker{
		channels:        make(map[string]subscriberSet),
		pchannels:       make(map[string]subscriberSet),
		schannels:       make(map[string]subscriberSet),
		clientChannels:  make(map[ClientID]map[string]bool),
		clientPatterns:  make(map[ClientID]map[string]bool),
		clientSChannels: make(map[ClientID]map[string]bool),
		ownsSlot:        ownsSlot,
	}
}

// Subscribe implements SUBSCRIBE: returns one ["subscribe", name, count]
// envelope per name, in order.
func (b *Broker) Subscribe(client ClientID, sub Subscriber, names []string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]any, 0, len(names))
	for _, name := range names {
		b.addTo(b.channels, b.clientChannels, client, sub, name)
		out = append(out, []any{"subscribe", name, b.totalSubs(client)})
	}
	return out
}

// PSubscribe implements PSUBSCRIBE.
func (b *Broker) PSubscribe(client ClientID, sub Subscriber, patterns []string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]any, 0, len(patterns))
	for _, pat := range patterns {
		b.addTo(b.pchannels, b.clientPatterns, client, sub, pat)
		out = append(out, []any{"psubscribe", pat, b.totalSubs(client)})
	}
	return out
}

// SSubscribeResult is either a normal envelope or, when the name's slot
// isn't locally owned, a MovedError placeholder for the router to rewrite.
type SSubscribeResult struct {
	Envelope []any
	Moved    *clustererr.MovedError
}

// SSubscribe implements SSUBSCRIBE: names whose slot isn't locally owned
// yield a MovedError placeholder instead of subscribing.
func (b *Broker) SSubscribe(client ClientID, sub Subscriber, names []string) []SSubscribeResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]SSubscribeResult, 0, len(names))
	for _, name := range names {
		slot := clusterid.KeySlot([]byte(name))
		if b.ownsSlot != nil && !b.ownsSlot(slot) {
			out = append(out, SSubscribeResult{Moved: &clustererr.MovedError{Slot: slot}})
			continue
		}
		b.addTo(b.schannels, b.clientSChannels, client, sub, name)
		out = append(out, SSubscribeResult{Envelope: []any{"ssubscribe", name, b.totalSubs(client)}})
	}
	return out
}

// Unsubscribe implements UNSUBSCRIBE. An empty names list unsubscribes from
// every channel currently held by client.
func (b *Broker) Unsubscribe(client ClientID, names []string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(names) == 0 {
		names = keysOf(b.clientChannels[client])
	}
	out := make([][]any, 0, len(names))
	for _, name := range names {
		b.removeFrom(b.channels, b.clientChannels, client, name)
		out = append(out, []any{"unsubscribe", name, b.totalSubs(client)})
	}
	if len(out) == 0 {
		out = append(out, []any{"unsubscribe", nil, b.totalSubs(client)})
	}
	return out
}

// PUnsubscribe implements PUNSUBSCRIBE.
func (b *Broker) PUnsubscribe(client ClientID, patterns []string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(patterns) == 0 {
		patterns = keysOf(b.clientPatterns[client])
	}
	out := make([][]any, 0, len(patterns))
	for _, pat := range patterns {
		b.removeFrom(b.pchannels, b.clientPatterns, client, pat)
		out = append(out, []any{"punsubscribe", pat, b.totalSubs(client)})
	}
	if len(out) == 0 {
		out = append(out, []any{"punsubscribe", nil, b.totalSubs(client)})
	}
	return out
}

// SUnsubscribe implements SUNSUBSCRIBE.
func (b *Broker) SUnsubscribe(client ClientID, names []string) [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(names) == 0 {
		names = keysOf(b.clientSChannels[client])
	}
	out := make([][]any, 0, len(names))
	for _, name := range names {
		b.removeFrom(b.schannels, b.clientSChannels, client, name)
		out = append(out, []any{"sunsubscribe", name, b.totalSubs(client)})
	}
	if len(out) == 0 {
		out = append(out, []any{"sunsubscribe", nil, b.totalSubs(client)})
	}
	return out
}

// UnsubscribeAll drops client from every map; used at connection teardown
// (the three synthetic unsubscribe-all commands of §4.7).
func (b *Broker) UnsubscribeAll(client ClientID) {
	b.Unsubscribe(client, nil)
	b.PUnsubscribe(client, nil)
	b.SUnsubscribe(client, nil)
}

// Publish implements PUBLISH: direct subscribers plus every pattern match.
// Returns the number of successful deliveries, counting a client once per
// distinct subscription that matched.
func (b *Broker) Publish(name, msg string) int {
	b.mu.Lock()
	direct := cloneSet(b.channels[name])
	var patternHits []struct {
		pattern string
		subs    subscriberSet
	}
	for pat, subs := range b.pchannels {
		if matchGlob(pat, name) {
			patternHits = append(patternHits, struct {
				pattern string
				subs    subscriberSet
			}{pat, cloneSet(subs)})
		}
	}
	b.mu.Unlock()

	count := 0
	for _, sub := range direct {
		if sub.Deliver([]any{"message", name, msg}) == nil {
			count++
		}
	}
	for _, hit := range patternHits {
		for _, sub := range hit.subs {
			if sub.Deliver([]any{"pmessage", hit.pattern, name, msg}) == nil {
				count++
			}
		}
	}
	return count
}

// SPublish implements SPUBLISH: delivers only if name's slot is locally
// owned; otherwise returns 0 and leaves redirection to the cluster router.
func (b *Broker) SPublish(name, msg string) int {
	slot := clusterid.KeySlot([]byte(name))
	if b.ownsSlot != nil && !b.ownsSlot(slot) {
		return 0
	}

	b.mu.Lock()
	subs := cloneSet(b.schannels[name])
	b.mu.Unlock()

	count := 0
	for _, sub := range subs {
		if sub.Deliver([]any{"smessage", name, msg}) == nil {
			count++
		}
	}
	return count
}

// Channels implements PUBSUB CHANNELS [pattern].
func (b *Broker) Channels(pattern string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name := range b.channels {
		if pattern == "" || matchGlob(pattern, name) {
			out = append(out, name)
		}
	}
	return out
}

// NumSub implements PUBSUB NUMSUB name...: count of subscribers per name.
func (b *Broker) NumSub(names []string) map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(names))
	for _, name := range names {
		out[name] = len(b.channels[name])
	}
	return out
}

// NumPat implements PUBSUB NUMPAT.
func (b *Broker) NumPat() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pchannels)
}

// ShardChannels implements PUBSUB SHARDCHANNELS.
func (b *Broker) ShardChannels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.schannels))
	for name := range b.schannels {
		out = append(out, name)
	}
	return out
}

// ShardNumSub implements PUBSUB SHARDNUMSUB name...
func (b *Broker) ShardNumSub(names []string) map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(names))
	for _, name := range names {
		out[name] = len(b.schannels[name])
	}
	return out
}

func (b *Broker) addTo(store map[string]subscriberSet, index map[ClientID]map[string]bool, client ClientID, sub Subscriber, name string) {
	set, ok := store[name]
	if !ok {
		set = make(subscriberSet)
		store[name] = set
	}
	set[client] = sub

	names, ok := index[client]
	if !ok {
		names = make(map[string]bool)
		index[client] = names
	}
	names[name] = true
}

func (b *Broker) removeFrom(store map[string]subscriberSet, index map[ClientID]map[string]bool, client ClientID, name string) {
	if set, ok := store[name]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(store, name)
		}
	}
	if names, ok := index[client]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(index, client)
		}
	}
}

// totalSubs is the running subscription count across all three kinds for
// client, reported in every subscribe/unsubscribe envelope.
func (b *Broker) totalSubs(client ClientID) int {
	return len(b.clientChannels[client]) + len(b.clientPatterns[client]) + len(b.clientSChannels[client])
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func cloneSet(s subscriberSet) subscriberSet {
	out := make(subscriberSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
