package udp

import (
	"net/netip"
	"time"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/metrics"
	"github.com/marmos91/dittoudp/pkg/request"
	"github.com/marmos91/dittoudp/pkg/transport"
)

const outcomePanic = "panic"

// dispatch runs the pipeline for one request. A panic in any hook ends
// this request only; it is reported through the bridge and never reaches
// the accept loop.
func (s *UDPAdapter) dispatch(rc *request.Context) {
	defer func() {
		if s.slots != nil {
			<-s.slots
		}
		s.metrics.SetInFlight(s.inFlight.Add(-1))
		s.activeRequests.Done()
	}()

	start := time.Now()

	var result hook.Result
	outcome := outcomePanic
	if pd := s.bridge.Protect(func() { result = s.pipeline.Run(rc) }); pd != nil {
		logger.Debug("UDP request %s from %s panicked: %s", rc.ID(), rc.Peer(), pd)
	} else {
		outcome = result.State.String()
	}

	duration := time.Since(start)
	s.metrics.RecordPipeline(outcome, duration)

	logger.Debug("UDP request %s from %s: %s after %d hook(s) in %v",
		rc.ID(), rc.Peer(), outcome, result.Executed, duration)
}

// meteredSender records send metrics around the socket.
type meteredSender struct {
	socket  *transport.Socket
	metrics metrics.UDPMetrics
}

func (m *meteredSender) SendTo(b []byte, peer netip.AddrPort) error {
	if err := m.socket.SendTo(b, peer); err != nil {
		m.metrics.RecordSendError()
		return err
	}
	m.metrics.RecordBytesSent(len(b))
	return nil
}
