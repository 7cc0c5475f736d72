package badger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/marmos91/dittoudp/pkg/peers"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// keyPrefix namespaces peer records in the database: "p:<address>".
const keyPrefix = "p:"

func peerKey(address string) []byte {
	return []byte(keyPrefix + address)
}

// wireRecord is the XDR layout of a stored record. Times are Unix
// nanoseconds.
type wireRecord struct {
	Address   string
	FirstSeen int64
	LastSeen  int64
	Datagrams uint64
	Bytes     uint64
}

func encodeRecord(r peers.Record) ([]byte, error) {
	w := wireRecord{
		Address:   r.Address,
		FirstSeen: r.FirstSeen.UnixNano(),
		LastSeen:  r.LastSeen.UnixNano(),
		Datagrams: r.Datagrams,
		Bytes:     r.Bytes,
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &w); err != nil {
		return nil, fmt.Errorf("encode peer %s: %w", r.Address, err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (peers.Record, error) {
	var w wireRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &w); err != nil {
		return peers.Record{}, fmt.Errorf("decode peer record: %w", err)
	}

	return peers.Record{
		Address:   w.Address,
		FirstSeen: time.Unix(0, w.FirstSeen),
		LastSeen:  time.Unix(0, w.LastSeen),
		Datagrams: w.Datagrams,
		Bytes:     w.Bytes,
	}, nil
}
