package transport

import (
	"net/http"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/pkg/probing"
	"github.com/1008610010/copycat/server"
)

// replicaServer is the narrow view of server.Server the HTTP handler needs;
// accepting an interface here (instead of *server.Server directly) keeps
// this file testable against a fake.
type replicaServer interface {
	HandleAppend(copycatpb.AppendRequest) copycatpb.AppendResponse
	HandleVote(copycatpb.VoteRequest) copycatpb.VoteResponse
	HandleInstall(copycatpb.InstallRequest) copycatpb.InstallResponse

	Connect(copycatpb.ConnectRequest) copycatpb.ConnectResponse
	Register(copycatpb.RegisterRequest) copycatpb.RegisterResponse
	KeepAlive(copycatpb.KeepAliveRequest) copycatpb.KeepAliveResponse
	CloseSession(copycatpb.CloseSessionRequest) copycatpb.CloseSessionResponse
	Command(copycatpb.CommandRequest) copycatpb.CommandResponse
	Query(copycatpb.QueryRequest) copycatpb.QueryResponse
	Metadata(copycatpb.MetadataRequest) copycatpb.MetadataResponse
	Configure(copycatpb.ConfigureRequest) copycatpb.ConfigureResponse
}

var _ replicaServer = (*server.Server)(nil)

// Handler is the HTTP mux exposing one replica's RPC surface, grounded on
// rafthttp/03_rafthttp.go's route table of peer and pipeline endpoints.
type Handler struct {
	srv replicaServer
	mux *http.ServeMux
}

// NewHandler builds the HTTP mux for srv.
func NewHandler(srv replicaServer) *Handler {
	h := &Handler{srv: srv, mux: http.NewServeMux()}

	h.mux.HandleFunc("/raft/append", h.serveAppend)
	h.mux.HandleFunc("/raft/vote", h.serveVote)
	h.mux.HandleFunc("/raft/install", h.serveInstall)

	h.mux.HandleFunc("/client/connect", h.serveConnect)
	h.mux.HandleFunc("/client/register", h.serveRegister)
	h.mux.HandleFunc("/client/keepalive", h.serveKeepAlive)
	h.mux.HandleFunc("/client/closesession", h.serveCloseSession)
	h.mux.HandleFunc("/client/command", h.serveCommand)
	h.mux.HandleFunc("/client/query", h.serveQuery)
	h.mux.HandleFunc("/client/metadata", h.serveMetadata)
	h.mux.HandleFunc("/client/configure", h.serveConfigure)

	h.mux.Handle("/health", probing.NewHTTPHealthHandler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

func (h *Handler) serveAppend(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.AppendRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.HandleAppend(req))
}

func (h *Handler) serveVote(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.VoteRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.HandleVote(req))
}

func (h *Handler) serveInstall(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.InstallRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.HandleInstall(req))
}

func (h *Handler) serveConnect(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.ConnectRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Connect(req))
}

func (h *Handler) serveRegister(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.RegisterRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Register(req))
}

func (h *Handler) serveKeepAlive(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.KeepAliveRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.KeepAlive(req))
}

func (h *Handler) serveCloseSession(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.CloseSessionRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.CloseSession(req))
}

func (h *Handler) serveCommand(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.CommandRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Command(req))
}

func (h *Handler) serveQuery(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.QueryRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Query(req))
}

func (h *Handler) serveMetadata(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.MetadataRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Metadata(req))
}

func (h *Handler) serveConfigure(w http.ResponseWriter, r *http.Request) {
	var req copycatpb.ConfigureRequest
	if err := decodeBody(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResponse(w, h.srv.Configure(req))
}
