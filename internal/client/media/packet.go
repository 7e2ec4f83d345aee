package media

import (
	"math/rand/v2"

	"github.com/pion/rtp"
)

const (
	// PayloadType is the dynamic RTP payload type used for raw PCM.
	PayloadType = 96
	// SampleBytes is the size of one 16-bit mono sample.
	SampleBytes = 2
)

// packetizer wraps captured buffers into RTP packets. One per outgoing call.
type packetizer struct {
	ssrc uint32
	seq  uint16
	ts   uint32
}

func newPacketizer() *packetizer {
	return &packetizer{ssrc: rand.Uint32(), seq: uint16(rand.Uint32()), ts: rand.Uint32()}
}

func (p *packetizer) marshal(payload []byte) ([]byte, error) {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    PayloadType,
			SequenceNumber: p.seq,
			Timestamp:      p.ts,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}
	p.seq++
	p.ts += uint32(len(payload) / SampleBytes)
	return data, nil
}

func unmarshalPacket(data []byte) (*rtp.Packet, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, err
	}
	return pkt, nil
}
