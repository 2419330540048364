// Package capture passively reconstructs hotline calls from SIP/RTP traffic:
// it tracks dialogs, reorders RTP, decodes G.711 and pushes utterance
// segments downstream.
package capture

import (
	"fmt"
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Datagram is one captured UDP payload with its addressing.
type Datagram struct {
	SrcIP   string
	DstIP   string
	SrcPort int
	DstPort int
	Payload []byte
}

// PacketSource yields captured datagrams. The production implementation
// reads a packet socket; tests feed a channel directly.
type PacketSource interface {
	Datagrams() <-chan Datagram
	Close()
}

// Sniffer captures UDP datagrams from a network interface using an
// AF_PACKET socket. Opening the socket requires CAP_NET_RAW.
type Sniffer struct {
	handle *pcapgo.EthernetHandle
	out    chan Datagram

	sipPort    int
	rtpPortMin int
	rtpPortMax int
}

// NewSniffer opens the interface and starts decoding in the background.
func NewSniffer(iface string, sipPort, rtpPortMin, rtpPortMax int) (*Sniffer, error) {
	handle, err := pcapgo.NewEthernetHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to open packet socket on %s: %w", iface, err)
	}

	s := &Sniffer{
		handle:     handle,
		out:        make(chan Datagram, 1024),
		sipPort:    sipPort,
		rtpPortMin: rtpPortMin,
		rtpPortMax: rtpPortMax,
	}

	go s.run()
	return s, nil
}

// Datagrams implements PacketSource.
func (s *Sniffer) Datagrams() <-chan Datagram {
	return s.out
}

// Close implements PacketSource. The read loop terminates on the next
// socket error after close.
func (s *Sniffer) Close() {
	s.handle.Close()
}

func (s *Sniffer) run() {
	defer close(s.out)

	src := gopacket.NewPacketSource(s.handle, layers.LinkTypeEthernet)
	src.NoCopy = true

	for packet := range src.Packets() {
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if ipLayer == nil || udpLayer == nil {
			continue
		}

		ip := ipLayer.(*layers.IPv4)
		udp := udpLayer.(*layers.UDP)

		srcPort := int(udp.SrcPort)
		dstPort := int(udp.DstPort)
		if !s.interesting(srcPort, dstPort) {
			continue
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)

		s.out <- Datagram{
			SrcIP:   ip.SrcIP.String(),
			DstIP:   ip.DstIP.String(),
			SrcPort: srcPort,
			DstPort: dstPort,
			Payload: payload,
		}
	}

	slog.Info("[Sniffer] Capture loop stopped")
}

// interesting filters to SIP signaling and the configured RTP port range.
func (s *Sniffer) interesting(srcPort, dstPort int) bool {
	if srcPort == s.sipPort || dstPort == s.sipPort {
		return true
	}
	return dstPort >= s.rtpPortMin && dstPort <= s.rtpPortMax
}

// ChanSource is a PacketSource backed by a plain channel, used by tests and
// offline replay.
type ChanSource struct {
	Ch chan Datagram
}

// NewChanSource creates a buffered channel source.
func NewChanSource(buf int) *ChanSource {
	return &ChanSource{Ch: make(chan Datagram, buf)}
}

// Datagrams implements PacketSource.
func (c *ChanSource) Datagrams() <-chan Datagram { return c.Ch }

// Close implements PacketSource.
func (c *ChanSource) Close() { close(c.Ch) }
