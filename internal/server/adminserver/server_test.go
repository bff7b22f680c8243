package adminserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"connectrpc.com/connect"

	v1 "github.com/tokmesh/cluster/api/proto/v1"
	"github.com/tokmesh/cluster/api/proto/v1/clusterv1connect"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/core/clusterid"
	"github.com/tokmesh/cluster/internal/core/neighbor"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
)

func newServerTestNode(t *testing.T) *clusternode.Node {
	t.Helper()
	id, err := clusterid.New()
	if err != nil {
		t.Fatalf("new node id: %v", err)
	}
	self := clusternode.Self{ID: id, ClientAddr: "127.0.0.1:5080", ClusterAddr: "127.0.0.1:15080"}
	return clusternode.New(self, 1, neighbor.RoleMaster, clusterid.Range{Start: 0, End: clusterid.SlotCount})
}

func waitForServer(t *testing.T, s *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != nil {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("adminserver never bound a listener")
	return nil
}

func TestServer_InfoOverTheWire(t *testing.T) {
	node := newServerTestNode(t)
	srv := New("127.0.0.1:0", node, &fakeDiscoverer{}, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	defer srv.Shutdown(context.Background())

	addr := waitForServer(t, srv)
	client := clusterv1connect.NewClusterAdminServiceClient(http.DefaultClient, "http://"+addr.String())

	resp, err := client.Info(context.Background(), connect.NewRequest(&v1.InfoRequest{}))
	if err != nil {
		t.Fatalf("Info over the wire failed: %v", err)
	}
	if resp.Msg.NodeId != node.Self.ID.String() {
		t.Errorf("NodeId = %q, want %q", resp.Msg.NodeId, node.Self.ID.String())
	}
}

func TestServer_MeetOverTheWire(t *testing.T) {
	node := newServerTestNode(t)
	disc := &fakeDiscoverer{}
	srv := New("127.0.0.1:0", node, disc, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	defer srv.Shutdown(context.Background())

	addr := waitForServer(t, srv)
	client := clusterv1connect.NewClusterAdminServiceClient(http.DefaultClient, "http://"+addr.String())

	resp, err := client.Meet(context.Background(), connect.NewRequest(&v1.MeetRequest{Address: "127.0.0.1:19999"}))
	if err != nil {
		t.Fatalf("Meet over the wire failed: %v", err)
	}
	if !resp.Msg.Accepted {
		t.Error("Accepted should be true")
	}
	if disc.addr != "127.0.0.1:19999" {
		t.Errorf("discoverer addr = %q, want %q", disc.addr, "127.0.0.1:19999")
	}
}
