package engine

import (
	"encoding/json"
	"time"

	"meshmon/logger"
	"meshmon/metrics"
	"meshmon/radio"
	"meshmon/supervisor"
)

// traceHopLimit bounds outgoing traceroute requests.
const traceHopLimit = 7

// loopSender implements dispatch.Sender. Its methods run on the engine's
// run loop goroutine (dispatch is only ever called from there), so they
// transmit directly and spill to the outbox when the link is down.
type loopSender struct {
	e *Engine
}

func (s *loopSender) Reply(text string, channel int, destination string) {
	s.e.transmitText("reply", text, channel, destination)
}

func (s *loopSender) NotifyAdmin(text string) {
	s.e.transmitText("admin", text, s.e.cfg.Radio.PrivateChannel, radio.Broadcast)
}

func (s *loopSender) RequestTrace(nodeID string) {
	metrics.TraceRequests.Inc()
	if err := s.e.rdo.SendTraceRoute(nodeID, traceHopLimit, s.e.cfg.Radio.PublicChannel); err != nil {
		logger.Warnf("engine: trace request to %s: %v", nodeID, err)
	}
}

func (s *loopSender) SendNodeInfo(destination string) {
	local, err := s.e.rdo.LocalNode()
	if err != nil {
		logger.Warnf("engine: node info: local identity unavailable: %v", err)
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"id":        local.ID,
		"shortname": local.ShortName,
		"longname":  local.LongName,
		"hwmodel":   local.HWModel,
		"role":      local.Role,
	})
	if err := s.e.rdo.SendData(payload, destination, radio.PortNodeInfo); err != nil {
		logger.Warnf("engine: node info to %s: %v", destination, err)
	}
}

func (s *loopSender) TriggerSitrep() {
	s.e.sendSitrep(time.Now())
}

// transmitText sends one text message, falling back to the db outbox when
// the link is down or the send fails. Queued messages drain on reconnect.
func (e *Engine) transmitText(kind, text string, channel int, destination string) {
	if e.sup.State() != supervisor.StateConnected {
		e.queueText(kind, text, channel, destination)
		return
	}
	if err := e.rdo.SendText(text, channel, destination); err != nil {
		logger.Warnf("engine: send %s: %v", kind, err)
		e.queueText(kind, text, channel, destination)
		return
	}
	metrics.SendsTotal.WithLabelValues("sent").Inc()
}

func (e *Engine) queueText(kind, text string, channel int, destination string) {
	if err := e.db.EnqueueOutbox(kind, channel, destination, text); err != nil {
		logger.Errorf("engine: outbox enqueue: %v", err)
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.SendsTotal.WithLabelValues("queued").Inc()
}

// drainOutbox retransmits queued messages oldest-first, stopping at the
// first failure so ordering is preserved.
func (e *Engine) drainOutbox() {
	pending, err := e.db.ListPendingOutbox(50)
	if err != nil {
		logger.Errorf("engine: outbox list: %v", err)
		return
	}
	for _, m := range pending {
		if err := e.rdo.SendText(m.Body, m.Channel, m.Destination); err != nil {
			logger.Warnf("engine: outbox drain stopped at %d: %v", m.ID, err)
			if err := e.db.IncrementOutboxRetries(m.ID); err != nil {
				logger.Errorf("engine: outbox retry count: %v", err)
			}
			return
		}
		if err := e.db.AckOutbox(m.ID); err != nil {
			logger.Errorf("engine: outbox ack %d: %v", m.ID, err)
			return
		}
		metrics.SendsTotal.WithLabelValues("sent").Inc()
	}
	if len(pending) > 0 {
		logger.Infof("engine: drained %d queued messages", len(pending))
	}
}
