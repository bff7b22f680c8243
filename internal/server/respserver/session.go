package respserver

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/executor"
	"github.com/tokmesh/cluster/internal/pubsub"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
	"github.com/tokmesh/cluster/internal/wire"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

var nextClientID atomic.Uint64

// session is one client-port connection: auth state, pub/sub subscriber
// identity, and the write lock shared between synchronous command replies
// and asynchronous pub/sub deliveries on the same socket.
type session struct {
	conn   net.Conn
	cipher adaptive.Cipher
	node   *clusternode.Node
	exec   *executor.Executor
	broker *pubsub.Broker
	log    logger.Logger

	id            pubsub.ClientID
	authenticated bool

	writeMu sync.Mutex
}

func newSession(conn net.Conn, cipher adaptive.Cipher, node *clusternode.Node, exec *executor.Executor, broker *pubsub.Broker, log logger.Logger) *session {
	return &session{
		conn:   conn,
		cipher: cipher,
		node:   node,
		exec:   exec,
		broker: broker,
		log:    log,
		id:     pubsub.ClientID(nextClientID.Add(1)),
	}
}

// Deliver implements pubsub.Subscriber: an async pub/sub envelope arriving
// on a goroutine other than this session's read loop, serialized as its
// own frame.
func (s *session) Deliver(envelope []any) error {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := writeReply(bw, envelope, s.resolveMoved); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.conn, s.cipher, buf.Bytes())
}

// resolveMoved finds the client address of the master whose declared slot
// range contains slot, for enriching a bare MovedError into the wire-format
// MOVED redirection (§6).
func (s *session) resolveMoved(slot uint16) (string, bool) {
	sl := clusterid.Slot(slot)
	var addr string
	var found bool
	s.node.KnowsNodes.Range(func(_ clusterid.NodeId, info *neighbor.Info) bool {
		if info.Role == neighbor.RoleMaster && info.Slots.Contains(sl) {
			addr, found = info.ClientAddr, true
			return false
		}
		return true
	})
	return addr, found
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	defer s.broker.UnsubscribeAll(s.id)

	for {
		payload, err := wire.ReadFrame(s.conn, s.cipher)
		if err != nil {
			return
		}
		br := bufio.NewReader(bytes.NewReader(payload))
		tokens, err := ReadCommand(br)
		if err != nil {
			s.replyError(err)
			return
		}
		if len(tokens) == 0 {
			continue
		}
		s.handle(ctx, byteTokensToStrings(tokens))
	}
}

func (s *session) handle(ctx context.Context, tokens []string) {
	name := strings.ToUpper(tokens[0])
	if name == "AUTH" {
		s.handleAuth(tokens)
		return
	}
	if s.exec.RequiresAuth() && !s.authenticated {
		s.writeOne(nil, notAuthenticatedErr())
		return
	}

	reply, err := s.exec.Execute(ctx, s.id, s, tokens)
	if err != nil {
		s.writeOne(nil, err)
		return
	}
	s.writeOne(reply, nil)
}

func (s *session) handleAuth(tokens []string) {
	if len(tokens) != 3 {
		s.writeOne(nil, syntaxErr())
		return
	}
	if s.exec.Authenticate(tokens[1], tokens[2]) {
		s.authenticated = true
		s.writeOne(executor.SimpleString("OK"), nil)
		return
	}
	s.writeOne(nil, authFailedErr())
}

func (s *session) writeOne(reply any, err error) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err != nil {
		_ = writeReply(bw, err, s.resolveMoved)
	} else {
		_ = writeReply(bw, reply, s.resolveMoved)
	}
	_ = bw.Flush()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = wire.WriteFrame(s.conn, s.cipher, buf.Bytes())
}

func (s *session) replyError(err error) {
	s.writeOne(nil, err)
}

func byteTokensToStrings(tokens [][]byte) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = string(t)
	}
	return out
}

func notAuthenticatedErr() *executor.CommandError {
	return &executor.CommandError{Code: "NOAUTH", Message: "Authentication required"}
}

func syntaxErr() *executor.CommandError {
	return &executor.CommandError{Code: "ERR", Message: "syntax error"}
}

func authFailedErr() *executor.CommandError {
	return &executor.CommandError{Code: "WRONGPASS", Message: "invalid username-password pair"}
}
