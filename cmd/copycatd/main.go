// Command copycatd runs one replica of a copycat cluster in front of a
// small demo key-value state machine, the way raft-example/main.go wires
// raftNode + dataStore together for the teacher's toy raft.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/pkg/netutil"
	"github.com/1008610010/copycat/pkg/osutil"
	"github.com/1008610010/copycat/pkg/tlsutil"
	"github.com/1008610010/copycat/server"
	"github.com/1008610010/copycat/transport"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("copycatd")

func init() {
	xlog.SetDebug(false)
}

func main() {
	var (
		name       = flag.String("name", "", "this replica's unique name")
		dir        = flag.String("dir", "", "data directory for the log, snapshots, and meta file")
		serverAddr = flag.String("server-addr", "", "this replica's peer-facing address (must match one entry in -members)")
		clientAddr = flag.String("client-addr", "", "this replica's client-facing address")
		members    = flag.String("members", "", "comma-separated id=serverAddr=clientAddr triples for the initial cluster")
	)
	flag.Parse()

	if *name == "" || *dir == "" || *serverAddr == "" {
		fmt.Fprintln(os.Stderr, "copycatd: -name, -dir, and -server-addr are required")
		os.Exit(1)
	}

	initialMembers, err := parseMembers(*members)
	if err != nil {
		fmt.Fprintf(os.Stderr, "copycatd: %v\n", err)
		os.Exit(1)
	}
	initial := cluster.NewConfiguration(0, 0, 0, initialMembers...)

	kv := newKVStore()

	client, err := transport.NewClient(tlsutil.TLSInfo{}, 5*time.Second)
	if err != nil {
		logger.Errorf("build transport client: %v", err)
		os.Exit(1)
	}

	config := server.Config{
		Name:          *name,
		Dir:           *dir,
		ServerAddress: *serverAddr,
		ClientAddress: *clientAddr,
	}

	srv, err := server.New(config, client, kv, initial)
	if err != nil {
		logger.Errorf("create server: %v", err)
		os.Exit(1)
	}
	srv.Start()

	handler := transport.NewHandler(srv)

	listenAddrs := []string{*serverAddr}
	if *clientAddr != "" && *clientAddr != *serverAddr {
		listenAddrs = append(listenAddrs, *clientAddr)
	}

	var httpServers []*http.Server
	for _, addr := range listenAddrs {
		l, err := netutil.NewListenerWithTimeout(addr, "http", nil, 0, 0)
		if err != nil {
			logger.Errorf("listen on %s: %v", addr, err)
			os.Exit(1)
		}
		httpSrv := &http.Server{Handler: handler}
		httpServers = append(httpServers, httpSrv)
		go func(addr string) {
			if err := httpSrv.Serve(l); err != nil && err != http.ErrServerClosed {
				logger.Errorf("http serve on %s: %v", addr, err)
			}
		}(addr)
	}

	osutil.RegisterInterruptHandler(func() {
		for _, httpSrv := range httpServers {
			httpSrv.Close()
		}
		srv.Stop()
	})
	osutil.WaitForInterruptSignals(syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Infof("%s stopped", *name)
}

// parseMembers decodes "id=serverAddr=clientAddr,..." into active Members.
func parseMembers(s string) ([]copycatpb.Member, error) {
	if s == "" {
		return nil, fmt.Errorf("-members must name at least one replica")
	}

	var out []copycatpb.Member
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(part, "=")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed member %q, want id=serverAddr=clientAddr", part)
		}
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed member id %q: %w", fields[0], err)
		}
		out = append(out, copycatpb.Member{
			ID:            id,
			Type:          copycatpb.MEMBER_TYPE_ACTIVE,
			Status:        copycatpb.MEMBER_STATUS_AVAILABLE,
			ServerAddress: fields[1],
			ClientAddress: fields[2],
		})
	}
	return out, nil
}
