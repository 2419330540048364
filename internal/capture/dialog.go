package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
)

// Direction indicates who initiated the dialog relative to this host.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Call is one tracked SIP dialog.
type Call struct {
	UniqueKey    string // SIP Call-ID
	FromIP       string // Remote media source IP
	FromExt      string // User part of the From URI
	ToExt        string // User part of the To URI
	Direction    Direction
	MediaPort    int // From the first m=audio line of the SDP offer
	StartTS      time.Time
	LastPacketTS time.Time
	Active       bool
}

// SIPEventKind classifies what a SIP message did to the dialog table.
type SIPEventKind int

const (
	SIPNone SIPEventKind = iota
	SIPCallStarted
	SIPCallEnded
)

// DialogTable tracks active dialogs keyed by Call-ID. One mutex guards the
// table for the capture loop and the timeout sweeper.
type DialogTable struct {
	mu     sync.RWMutex
	calls  map[string]*Call
	parser *sip.Parser
	hostIP string
}

// NewDialogTable creates an empty table. hostIP is the local hotline address
// used to classify dialog direction.
func NewDialogTable(hostIP string) *DialogTable {
	return &DialogTable{
		calls:  make(map[string]*Call),
		parser: sip.NewParser(),
		hostIP: hostIP,
	}
}

// HandleSIP parses one SIP datagram and updates the table.
// Malformed messages are dropped with a debug log.
func (t *DialogTable) HandleSIP(raw []byte, srcIP string) (SIPEventKind, *Call) {
	msg, err := t.parser.ParseSIP(raw)
	if err != nil {
		slog.Debug("[Dialog] Dropping malformed SIP datagram", "src", srcIP, "error", err)
		return SIPNone, nil
	}

	callIDHdr := msg.CallID()
	if callIDHdr == nil || callIDHdr.Value() == "" {
		slog.Debug("[Dialog] SIP message without Call-ID", "src", srcIP)
		return SIPNone, nil
	}
	callID := callIDHdr.Value()

	req, isRequest := msg.(*sip.Request)
	if !isRequest {
		// Responses only refresh liveness.
		t.Touch(callID)
		return SIPNone, nil
	}

	switch req.Method {
	case sip.INVITE:
		return t.handleInvite(req, callID, srcIP)
	case sip.BYE:
		return t.handleBye(callID)
	default:
		t.Touch(callID)
		return SIPNone, nil
	}
}

func (t *DialogTable) handleInvite(req *sip.Request, callID, srcIP string) (SIPEventKind, *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if call, ok := t.calls[callID]; ok {
		// Re-INVITE: refresh only.
		call.LastPacketTS = time.Now()
		return SIPNone, nil
	}

	direction := DirectionIncoming
	if srcIP == t.hostIP {
		direction = DirectionOutgoing
	}

	now := time.Now()
	call := &Call{
		UniqueKey:    callID,
		FromIP:       remoteMediaIP(req, srcIP),
		FromExt:      uriUser(req.From()),
		ToExt:        uriUserTo(req.To()),
		Direction:    direction,
		MediaPort:    audioPort(req.Body()),
		StartTS:      now,
		LastPacketTS: now,
		Active:       true,
	}
	t.calls[callID] = call

	slog.Info("[Dialog] New call",
		"call_id", callID,
		"from_ip", call.FromIP,
		"from_ext", call.FromExt,
		"to_ext", call.ToExt,
		"direction", call.Direction,
		"media_port", call.MediaPort,
	)
	return SIPCallStarted, call
}

func (t *DialogTable) handleBye(callID string) (SIPEventKind, *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()

	call, ok := t.calls[callID]
	if !ok || !call.Active {
		return SIPNone, nil
	}

	call.Active = false
	call.LastPacketTS = time.Now()
	slog.Info("[Dialog] Call ended", "call_id", callID, "duration", time.Since(call.StartTS).Round(time.Second))
	return SIPCallEnded, call
}

// Touch refreshes LastPacketTS for a known dialog.
func (t *DialogTable) Touch(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if call, ok := t.calls[callID]; ok {
		call.LastPacketTS = time.Now()
	}
}

// ActiveBySrcIP returns the active calls whose remote media IP matches.
// The RTP validator needs exactly-one ownership; more than one match is
// ambiguous and the packet is dropped by the caller.
func (t *DialogTable) ActiveBySrcIP(ip string) []*Call {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matches []*Call
	for _, call := range t.calls {
		if call.Active && call.FromIP == ip {
			matches = append(matches, call)
		}
	}
	return matches
}

// ActiveByMediaPort returns the active calls whose negotiated media port
// matches. Used to attribute locally originated RTP, where the source IP is
// the host itself.
func (t *DialogTable) ActiveByMediaPort(port int) []*Call {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matches []*Call
	for _, call := range t.calls {
		if call.Active && call.MediaPort != 0 && call.MediaPort == port {
			matches = append(matches, call)
		}
	}
	return matches
}

// Get returns the call for a Call-ID.
func (t *DialogTable) Get(callID string) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	call, ok := t.calls[callID]
	return call, ok
}

// TouchMedia refreshes liveness when RTP arrives for a call.
func (t *DialogTable) TouchMedia(call *Call) {
	t.mu.Lock()
	call.LastPacketTS = time.Now()
	t.mu.Unlock()
}

// Sweep marks calls without packets for timeout as inactive and returns
// them; fully dead inactive entries are removed from the table.
func (t *DialogTable) Sweep(timeout time.Duration) []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var timedOut []*Call
	for callID, call := range t.calls {
		idle := now.Sub(call.LastPacketTS)
		if call.Active && idle >= timeout {
			call.Active = false
			timedOut = append(timedOut, call)
			slog.Warn("[Dialog] Call timed out", "call_id", callID, "idle", idle.Round(time.Second))
		} else if !call.Active && idle >= 2*timeout {
			delete(t.calls, callID)
		}
	}
	return timedOut
}

// Count returns the number of tracked dialogs.
func (t *DialogTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

// remoteMediaIP picks the remote party's media address: Contact host, then
// Via host, then the datagram source.
func remoteMediaIP(req *sip.Request, srcIP string) string {
	if contact := req.Contact(); contact != nil && contact.Address.Host != "" {
		return contact.Address.Host
	}
	if via := req.Via(); via != nil && via.Host != "" {
		return via.Host
	}
	return srcIP
}

func uriUser(from *sip.FromHeader) string {
	if from == nil {
		return ""
	}
	return from.Address.User
}

func uriUserTo(to *sip.ToHeader) string {
	if to == nil {
		return ""
	}
	return to.Address.User
}

// audioPort extracts the port of the first m=audio media description from
// an SDP body, or 0 when absent.
func audioPort(body []byte) int {
	if len(body) == 0 {
		return 0
	}

	sd := sdp.SessionDescription{}
	if err := sd.Unmarshal(body); err != nil {
		slog.Debug("[Dialog] Unparseable SDP body", "error", err)
		return 0
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			return md.MediaName.Port.Value
		}
	}
	return 0
}
