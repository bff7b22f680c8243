// Package busserver implements the cluster-bus listener of §6: the
// port-plus-10000 connection layer that owns outgoing_streams and
// incoming_streams, dials newly-gossiped neighbors, and feeds the router's
// inbound channel from every accepted connection's read loop.
package busserver

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/tokmesh/cluster/internal/bus"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/executor"
	"github.com/tokmesh/cluster/internal/router"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
	"github.com/tokmesh/cluster/internal/telemetry/metric"
	"github.com/tokmesh/cluster/internal/wire"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// Router is the subset of router.Router the bus server feeds and never
// blocks on.
type Router interface {
	Submit(msg bus.Message)
}

// Server owns the cluster-bus listener plus the outgoing connection pool.
// It implements heartbeat.Sender, heartbeat.Discoverer, promotion.Sender,
// router.Sender and executor.Sender — every component that needs to put a
// bus.Message on the wire goes through the same Send method.
type Server struct {
	addr    string
	cipher  adaptive.Cipher
	node    *clusternode.Node
	router  Router
	exec    *executor.Executor
	log     logger.Logger
	metrics *metric.Registry

	ln net.Listener
	wg sync.WaitGroup

	outMu sync.Mutex
	out   map[clusterid.NodeId]*outConn
}

type outConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// New constructs a Server.
func New(addr string, cipher adaptive.Cipher, node *clusternode.Node, rt Router, exec *executor.Executor, log logger.Logger) *Server {
	return &Server{
		addr:   addr,
		cipher: cipher,
		node:   node,
		router: rt,
		exec:   exec,
		log:    log,
		out:    make(map[clusterid.NodeId]*outConn),
	}
}

// SetExecutor wires the command executor, for callers that construct the
// Server before the executor exists (the executor itself needs a Sender,
// which this Server provides).
func (s *Server) SetExecutor(exec *executor.Executor) {
	s.exec = exec
}

// SetMetrics wires the metrics registry. A nil registry (the zero value of
// this field) leaves metric recording a no-op, so tests that never call
// this still work unmodified.
func (s *Server) SetMetrics(m *metric.Registry) {
	s.metrics = m
}

func (s *Server) recordSent(kind bus.Kind) {
	if s.metrics != nil {
		s.metrics.MessagesSent.WithLabelValues(kind.String()).Inc()
	}
}

func (s *Server) recordReceived(kind bus.Kind) {
	if s.metrics != nil {
		s.metrics.MessagesReceived.WithLabelValues(kind.String()).Inc()
	}
}

// ListenAndServe binds addr and accepts cluster-bus connections until ctx
// is canceled or Shutdown closes the listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("busserver listening", "address", s.addr)
	return s.serve(ctx, ln)
}

// Addr returns the bound listener address. Only meaningful after
// ListenAndServe has started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("busserver accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveIncoming(ctx, conn)
		}()
	}
}

// Shutdown closes the listener, every outgoing connection, and waits for
// in-flight readers to exit.
func (s *Server) Shutdown(context.Context) error {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.outMu.Lock()
	for id, oc := range s.out {
		oc.conn.Close()
		delete(s.out, id)
	}
	s.outMu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) serveIncoming(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := wire.ReadFrame(conn, s.cipher)
		if err != nil {
			return
		}
		msg, err := bus.Decode(payload)
		if err != nil {
			s.log.Warn("busserver decode error", "error", err)
			continue
		}
		s.recordReceived(msg.Header.Kind)

		switch msg.Header.Kind {
		case bus.KindMeet, bus.KindMeetMaster:
			s.handleMeet(ctx, conn, msg)
		case bus.KindRedisCommand:
			p := msg.Payload.(bus.RedisCommandPayload)
			if err := s.exec.ExecuteReplica(p.Tokens); err != nil {
				s.log.Warn("replica apply failed", "error", err)
			}
		default:
			s.router.Submit(msg)
		}
	}
}

// handleMeet replies with this node's own identity, per the router's
// comment that Meet/MeetMaster are handled at the accept layer. The peer's
// neighbor record is not updated here.
func (s *Server) handleMeet(ctx context.Context, conn net.Conn, msg bus.Message) {
	reply := bus.Message{
		Header: s.selfHeader(bus.KindMeet),
	}
	if msg.Header.Kind == bus.KindMeetMaster {
		reply.Header.Kind = bus.KindMeetMaster
		reply.Payload = bus.MeetMasterPayload{}
	} else {
		reply.Payload = bus.MeetPayload{}
	}

	encoded, err := bus.Encode(reply)
	if err != nil {
		s.log.Warn("busserver encode meet reply failed", "error", err)
		return
	}
	if err := wire.WriteFrame(conn, s.cipher, encoded); err != nil {
		s.log.Warn("busserver write meet reply failed", "error", err)
		return
	}
	s.recordSent(reply.Header.Kind)
}

func (s *Server) selfHeader(kind bus.Kind) bus.Header {
	return bus.Header{
		Kind:         kind,
		Sender:       s.node.Self.ID,
		CurrentEpoch: s.node.CurrentEpoch.Load(),
		ConfigEpoch:  s.node.ConfigEpoch.Load(),
		SenderSlots:  s.node.Storage.SlotRange(),
		ClusterState: s.node.ClusterState(),
	}
}

// Send implements heartbeat.Sender, promotion.Sender, router.Sender, and
// executor.Sender: it reuses an existing outgoing connection to id, or
// dials its known cluster-bus address.
func (s *Server) Send(ctx context.Context, to clusterid.NodeId, msg bus.Message) error {
	oc, err := s.connFor(ctx, to)
	if err != nil {
		return err
	}
	encoded, err := bus.Encode(msg)
	if err != nil {
		return err
	}
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if err := wire.WriteFrame(oc.conn, s.cipher, encoded); err != nil {
		s.dropConn(to, oc)
		return err
	}
	s.recordSent(msg.Header.Kind)
	return nil
}

// Discover implements heartbeat.Discoverer: dial a newly-gossiped neighbor
// and send Meet; the reply is read on the new connection and fed to the
// router.
func (s *Server) Discover(ctx context.Context, id clusterid.NodeId, addr string) {
	if _, err := s.dial(ctx, id, addr); err != nil {
		s.log.Warn("busserver discover dial failed", "node", id, "address", addr, "error", err)
		return
	}
	msg := bus.Message{Header: s.selfHeader(bus.KindMeet), Payload: bus.MeetPayload{}}
	if err := s.Send(ctx, id, msg); err != nil {
		s.log.Warn("busserver discover meet failed", "node", id, "error", err)
	}
}

// MeetAddress dials addr directly, with no known NodeId yet, and sends a
// bare MeetMaster so the admin CLI's Meet RPC can introduce a node by
// address alone. The connection is not registered in the outgoing pool:
// the real NodeId is learned from the reply (routed to the coordinator
// like any other inbound Meet), and future Sends to that id dial afresh
// through connFor once knows_nodes carries its cluster address.
func (s *Server) MeetAddress(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	encoded, err := bus.Encode(bus.Message{Header: s.selfHeader(bus.KindMeetMaster), Payload: bus.MeetMasterPayload{}})
	if err != nil {
		conn.Close()
		return err
	}
	if err := wire.WriteFrame(conn, s.cipher, encoded); err != nil {
		conn.Close()
		return err
	}
	s.recordSent(bus.KindMeetMaster)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		for {
			payload, err := wire.ReadFrame(conn, s.cipher)
			if err != nil {
				return
			}
			msg, err := bus.Decode(payload)
			if err != nil {
				s.log.Warn("busserver decode error", "error", err)
				continue
			}
			s.recordReceived(msg.Header.Kind)
			s.router.Submit(msg)
		}
	}()
	return nil
}

// BroadcastPubSub implements the executor's optional broadcastSender
// capability (§4.6 InnerPubSub): propagate tokens to every known node.
func (s *Server) BroadcastPubSub(tokens []string) {
	msg := bus.Message{Header: s.selfHeader(bus.KindPubSub), Payload: bus.PubSubPayload{Tokens: tokens}}
	s.node.KnowsNodes.Range(func(id clusterid.NodeId, _ *neighbor.Info) bool {
		_ = s.Send(context.Background(), id, msg)
		return true
	})
}

func (s *Server) connFor(ctx context.Context, to clusterid.NodeId) (*outConn, error) {
	s.outMu.Lock()
	oc, ok := s.out[to]
	s.outMu.Unlock()
	if ok {
		return oc, nil
	}

	info, ok := s.node.KnowsNodes.Get(to)
	if !ok || info.ClusterAddr == "" {
		return nil, errors.New("busserver: unknown cluster address for node")
	}
	return s.dial(ctx, to, info.ClusterAddr)
}

func (s *Server) dial(ctx context.Context, to clusterid.NodeId, addr string) (*outConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	oc := &outConn{conn: conn}

	s.outMu.Lock()
	s.out[to] = oc
	s.outMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readOutgoing(ctx, to, oc)
	}()

	return oc, nil
}

func (s *Server) dropConn(id clusterid.NodeId, oc *outConn) {
	s.outMu.Lock()
	if cur, ok := s.out[id]; ok && cur == oc {
		delete(s.out, id)
	}
	s.outMu.Unlock()
	oc.conn.Close()
}

// readOutgoing drains replies arriving on a connection this node dialed
// (Pong, FailAuthAck, ...), feeding them to the router exactly like an
// incoming connection.
func (s *Server) readOutgoing(ctx context.Context, id clusterid.NodeId, oc *outConn) {
	defer s.dropConn(id, oc)
	for {
		payload, err := wire.ReadFrame(oc.conn, s.cipher)
		if err != nil {
			return
		}
		msg, err := bus.Decode(payload)
		if err != nil {
			s.log.Warn("busserver decode error", "error", err)
			continue
		}
		s.recordReceived(msg.Header.Kind)
		if msg.Header.Kind == bus.KindRedisCommand {
			p := msg.Payload.(bus.RedisCommandPayload)
			if err := s.exec.ExecuteReplica(p.Tokens); err != nil {
				s.log.Warn("replica apply failed", "error", err)
			}
			continue
		}
		s.router.Submit(msg)
	}
}
