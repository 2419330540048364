package capture

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const testSDP = "v=0\r\n" +
	"o=- 123456 123456 IN IP4 10.0.0.50\r\n" +
	"s=call\r\n" +
	"c=IN IP4 10.0.0.50\r\n" +
	"t=0 0\r\n" +
	"m=audio 10512 RTP/AVP 0 8\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n"

func inviteMessage(callID string) []byte {
	return sipRequest("INVITE", callID, testSDP)
}

func byeMessage(callID string) []byte {
	return sipRequest("BYE", callID, "")
}

func sipRequest(method, callID, body string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s sip:1001@10.0.0.1 SIP/2.0\r\n", method)
	sb.WriteString("Via: SIP/2.0/UDP 10.0.0.50:5060;branch=z9hG4bK776asdhds\r\n")
	sb.WriteString("Max-Forwards: 70\r\n")
	sb.WriteString("From: \"Citizen\" <sip:2002@10.0.0.50>;tag=1928301774\r\n")
	sb.WriteString("To: <sip:1001@10.0.0.1>\r\n")
	fmt.Fprintf(&sb, "Call-ID: %s\r\n", callID)
	fmt.Fprintf(&sb, "CSeq: 314159 %s\r\n", method)
	sb.WriteString("Contact: <sip:2002@10.0.0.50:5060>\r\n")
	if body != "" {
		sb.WriteString("Content-Type: application/sdp\r\n")
	}
	fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(body))
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

func TestInviteCreatesCall(t *testing.T) {
	table := NewDialogTable("10.0.0.1")

	kind, call := table.HandleSIP(inviteMessage("call-1@host"), "10.0.0.50")
	if kind != SIPCallStarted {
		t.Fatalf("HandleSIP(INVITE) kind = %v, want SIPCallStarted", kind)
	}

	if call.UniqueKey != "call-1@host" {
		t.Errorf("UniqueKey = %q, want %q", call.UniqueKey, "call-1@host")
	}
	if call.FromIP != "10.0.0.50" {
		t.Errorf("FromIP = %q, want %q", call.FromIP, "10.0.0.50")
	}
	if call.FromExt != "2002" {
		t.Errorf("FromExt = %q, want %q", call.FromExt, "2002")
	}
	if call.ToExt != "1001" {
		t.Errorf("ToExt = %q, want %q", call.ToExt, "1001")
	}
	if call.Direction != DirectionIncoming {
		t.Errorf("Direction = %q, want incoming", call.Direction)
	}
	if call.MediaPort != 10512 {
		t.Errorf("MediaPort = %d, want 10512", call.MediaPort)
	}
	if !call.Active {
		t.Error("new call is not active")
	}
}

func TestInviteFromHostIsOutgoing(t *testing.T) {
	table := NewDialogTable("10.0.0.50")

	_, call := table.HandleSIP(inviteMessage("call-2@host"), "10.0.0.50")
	if call == nil {
		t.Fatal("INVITE did not create a call")
	}
	if call.Direction != DirectionOutgoing {
		t.Errorf("Direction = %q, want outgoing", call.Direction)
	}
}

func TestReinviteDoesNotDuplicate(t *testing.T) {
	table := NewDialogTable("10.0.0.1")

	table.HandleSIP(inviteMessage("call-3@host"), "10.0.0.50")
	kind, _ := table.HandleSIP(inviteMessage("call-3@host"), "10.0.0.50")
	if kind != SIPNone {
		t.Errorf("re-INVITE kind = %v, want SIPNone", kind)
	}
	if got := table.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestByeEndsCall(t *testing.T) {
	table := NewDialogTable("10.0.0.1")
	table.HandleSIP(inviteMessage("call-4@host"), "10.0.0.50")

	kind, call := table.HandleSIP(byeMessage("call-4@host"), "10.0.0.50")
	if kind != SIPCallEnded {
		t.Fatalf("HandleSIP(BYE) kind = %v, want SIPCallEnded", kind)
	}
	if call.Active {
		t.Error("call still active after BYE")
	}

	// A second BYE for the same dialog is a no-op.
	kind, _ = table.HandleSIP(byeMessage("call-4@host"), "10.0.0.50")
	if kind != SIPNone {
		t.Errorf("second BYE kind = %v, want SIPNone", kind)
	}
}

func TestByeForUnknownCall(t *testing.T) {
	table := NewDialogTable("10.0.0.1")
	kind, _ := table.HandleSIP(byeMessage("missing@host"), "10.0.0.50")
	if kind != SIPNone {
		t.Errorf("BYE for unknown call kind = %v, want SIPNone", kind)
	}
}

func TestMalformedSIPDropped(t *testing.T) {
	table := NewDialogTable("10.0.0.1")
	kind, call := table.HandleSIP([]byte("not a sip message at all"), "10.0.0.50")
	if kind != SIPNone || call != nil {
		t.Error("malformed SIP was not dropped")
	}
	if got := table.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestActiveBySrcIP(t *testing.T) {
	table := NewDialogTable("10.0.0.1")
	table.HandleSIP(inviteMessage("call-5@host"), "10.0.0.50")

	if got := len(table.ActiveBySrcIP("10.0.0.50")); got != 1 {
		t.Errorf("ActiveBySrcIP matches = %d, want 1", got)
	}
	if got := len(table.ActiveBySrcIP("10.9.9.9")); got != 0 {
		t.Errorf("ActiveBySrcIP for stranger = %d, want 0", got)
	}

	table.HandleSIP(byeMessage("call-5@host"), "10.0.0.50")
	if got := len(table.ActiveBySrcIP("10.0.0.50")); got != 0 {
		t.Errorf("ActiveBySrcIP after BYE = %d, want 0", got)
	}
}

func TestSweepTimesOutIdleCalls(t *testing.T) {
	table := NewDialogTable("10.0.0.1")
	_, call := table.HandleSIP(inviteMessage("call-6@host"), "10.0.0.50")

	call.LastPacketTS = time.Now().Add(-time.Minute)
	timedOut := table.Sweep(30 * time.Second)
	if len(timedOut) != 1 {
		t.Fatalf("Sweep() returned %d calls, want 1", len(timedOut))
	}
	if timedOut[0].Active {
		t.Error("timed-out call still active")
	}

	// A fresh call survives the sweep.
	table.HandleSIP(inviteMessage("call-7@host"), "10.0.0.50")
	if got := table.Sweep(30 * time.Second); len(got) != 0 {
		t.Errorf("Sweep() on fresh call returned %d, want 0", len(got))
	}
}
