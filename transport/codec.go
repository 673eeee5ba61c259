// Package transport implements the HTTP wire layer connecting replicas to
// each other and clients to the cluster: an RPC envelope per spec.md §6
// over gob-encoded bodies, the way rafthttp moves raftpb.Message over HTTP
// but without a generated protobuf codec (none is available in this
// module's dependency surface, so the payload fields inside
// copycatpb.Entry stay opaque and every RPC struct rides gob instead).
package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
)

func encodeBody(v interface{}) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	return &buf, nil
}

func decodeBody(r io.Reader, v interface{}) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("transport: decode: %w", err)
	}
	return nil
}

func writeResponse(w http.ResponseWriter, v interface{}) {
	buf, err := encodeBody(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(buf.Bytes())
}
