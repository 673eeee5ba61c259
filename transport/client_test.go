package transport

import (
	"time"

	"github.com/1008610010/copycat/pkg/tlsutil"
)

func newTestClient() (*Client, error) {
	return NewClient(tlsutil.TLSInfo{}, 2*time.Second)
}
