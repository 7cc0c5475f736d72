package peers

import (
	"context"
	"time"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/request"
)

// AttributeKey is the request attribute under which Tracker publishes the
// sender's updated Record.
const AttributeKey = "peers.record"

// DefaultObserveTimeout bounds how long Tracker waits on the store.
const DefaultObserveTimeout = time.Second

// Tracker returns a hook that records every datagram in store and publishes
// the sender's updated Record on the request context.
//
// Store failures are logged and never abort the request.
func Tracker(store Store) hook.Factory {
	return hook.Func(func(rc *request.Context) {
		if !rc.Peer().IsValid() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), DefaultObserveTimeout)
		defer cancel()

		record, err := store.Observe(ctx, rc.PeerHost(), len(rc.Payload()), rc.ReceivedAt())
		if err != nil {
			logger.Warn("Failed to record peer %s: %v", rc.PeerHost(), err)
			return
		}
		request.SetAttribute(rc, AttributeKey, record)
	})
}

// FromContext returns the Record published by Tracker, if any.
func FromContext(rc *request.Context) (Record, bool) {
	return request.GetAttribute[Record](rc, AttributeKey)
}
