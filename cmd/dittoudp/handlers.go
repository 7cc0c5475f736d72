package main

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/peers"
	"github.com/marmos91/dittoudp/pkg/request"
	"github.com/marmos91/dittoudp/pkg/server"
)

// registerHandlers installs the demo protocol:
//
//	ping     -> pong
//	whoami   -> the sender's address and traffic counters
//	anything -> echoed back
//
// Empty datagrams are dropped before the handlers run.
func registerHandlers(srv *server.Server) {
	srv.RegisterHandler(dropEmpty)
	srv.RegisterHandler(respond)
}

func dropEmpty(rc *request.Context) {
	if len(request.TrimTrailingZeros(rc.Payload())) == 0 {
		logger.Debug("Ignoring empty datagram from %s", rc.Peer())
		rc.Abort()
	}
}

func respond(rc *request.Context) {
	payload := bytes.TrimSpace(request.TrimTrailingZeros(rc.Payload()))

	var reply []byte
	switch string(payload) {
	case "ping":
		reply = []byte("pong")
	case "whoami":
		reply = whoami(rc)
	default:
		reply = payload
	}

	if err := rc.Send(reply); err != nil {
		logger.Warn("Failed to reply to %s: %v", rc.Peer(), err)
	}
}

func whoami(rc *request.Context) []byte {
	record, ok := peers.FromContext(rc)
	if !ok {
		return fmt.Appendf(nil, "%s", rc.Peer())
	}
	return fmt.Appendf(nil, "%s datagrams=%d bytes=%d first_seen=%s",
		rc.Peer(), record.Datagrams, record.Bytes, record.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"))
}
