package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meshmon/logger"
	"meshmon/radio"
	"meshmon/registry"
)

// Command verbs after normalization. Long and short spellings collapse
// to the same verb.
const (
	cmdPing           = "ping"
	cmdSitrep         = "sitrep"
	cmdSendNodeInfo   = "sendnodeinfo"
	cmdSetNOI         = "setnoi"
	cmdRemoveNOI      = "removenoi"
	cmdRemoveNode     = "removenode"
	cmdTraceNode      = "tracenode"
	cmdSetAircraft    = "setaircraft"
	cmdRemoveAircraft = "removeaircraft"
)

// targetedPhrases map spoken command prefixes to verbs, most specific
// first ("remove node of interest" must win over "remove node").
var targetedPhrases = []struct {
	phrase string
	verb   string
}{
	{"set node of interest", cmdSetNOI},
	{"setnoi", cmdSetNOI},
	{"remove node of interest", cmdRemoveNOI},
	{"removenoi", cmdRemoveNOI},
	{"remove aircraft", cmdRemoveAircraft},
	{"removeaircraft", cmdRemoveAircraft},
	{"set aircraft", cmdSetAircraft},
	{"setaircraft", cmdSetAircraft},
	{"trace node", cmdTraceNode},
	{"tracenode", cmdTraceNode},
	{"remove node", cmdRemoveNode},
	{"removenode", cmdRemoveNode},
}

// parseCommand normalizes a text message into a command verb and
// target. The target is always the last word.
func parseCommand(text string) (verb, target string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case cmdPing, cmdSitrep, cmdSendNodeInfo:
		return lower, "", true
	}
	for _, tp := range targetedPhrases {
		if strings.HasPrefix(lower, tp.phrase+" ") {
			fields := strings.Fields(strings.TrimSpace(text))
			return tp.verb, fields[len(fields)-1], true
		}
	}
	return "", "", false
}

func (d *Dispatcher) handleText(ctx context.Context, pkt radio.PacketEvent) {
	text := strings.TrimSpace(pkt.Text)
	if text == "" {
		return
	}

	direct := pkt.ToID == d.localID
	replyTo := radio.Broadcast
	if direct {
		replyTo = pkt.FromID
	}

	verb, target, ok := parseCommand(text)
	if !ok {
		if direct {
			d.conversationalReply(ctx, pkt)
		} else {
			logger.Debugf("dispatch: text from %s: %q", pkt.FromID, text)
		}
		return
	}

	d.emitter.EmitCommand(verb, pkt.FromID)
	logger.Infof("dispatch: command %s from %s (target %q)", verb, pkt.FromID, target)

	switch verb {
	case cmdPing:
		d.sender.Reply("pong", pkt.Channel, replyTo)
		return
	case cmdSitrep:
		d.sender.TriggerSitrep()
		return
	case cmdSendNodeInfo:
		d.sender.SendNodeInfo(pkt.FromID)
		return
	}

	n, err := d.reg.ByName(target)
	if errors.Is(err, registry.ErrUnknownNode) {
		d.sender.Reply(fmt.Sprintf("'%s' not found", target), pkt.Channel, replyTo)
		return
	}
	if err != nil {
		logger.Errorf("dispatch: resolve %q: %v", target, err)
		return
	}

	switch verb {
	case cmdSetNOI:
		if err := d.reg.SetNodeOfInterest(n.ID, true); err == nil {
			d.sender.Reply(fmt.Sprintf("%s marked as a node of interest", n.Short()), pkt.Channel, replyTo)
		}
	case cmdRemoveNOI:
		if err := d.reg.SetNodeOfInterest(n.ID, false); err == nil {
			d.sender.Reply(fmt.Sprintf("%s removed as a node of interest", n.Short()), pkt.Channel, replyTo)
		}
	case cmdSetAircraft:
		if err := d.reg.SetAircraft(n.ID, true); err == nil {
			d.sender.Reply(fmt.Sprintf("%s marked as aircraft", n.Short()), pkt.Channel, replyTo)
		}
	case cmdRemoveAircraft:
		if err := d.reg.SetAircraft(n.ID, false); err == nil {
			d.sender.Reply(fmt.Sprintf("%s removed as aircraft", n.Short()), pkt.Channel, replyTo)
		}
	case cmdRemoveNode:
		if err := d.reg.Remove(n.ID); err == nil {
			d.emitter.EmitNodeRemoved(n.ID)
			d.sender.Reply(fmt.Sprintf("%s removed", n.Short()), pkt.Channel, replyTo)
		}
	case cmdTraceNode:
		if d.requestTrace(n) {
			d.sender.Reply(fmt.Sprintf("Tracing %s", n.Short()), pkt.Channel, replyTo)
		} else {
			d.sender.Reply(fmt.Sprintf("%s was traced recently, holding off", n.Short()), pkt.Channel, replyTo)
		}
	}
}

// conversationalReply answers direct non-command chat. The canned text
// goes through the rephraser when one is configured; on any failure the
// canned text is sent as-is.
func (d *Dispatcher) conversationalReply(ctx context.Context, pkt radio.PacketEvent) {
	canned := fmt.Sprintf("This is %s, an automated mesh monitor. Send 'sitrep' for a situation report or 'ping' to test the link.", d.localShort)
	reply := canned
	if d.rephraser != nil {
		if out, err := d.rephraser.Rephrase(ctx, pkt.FromID, canned, pkt.Text); err == nil && out != "" {
			reply = out
		} else if err != nil {
			logger.Debugf("dispatch: rephrase: %v", err)
		}
	}
	d.sender.Reply(reply, pkt.Channel, pkt.FromID)
}
