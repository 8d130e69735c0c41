package soundio

import "time"

const (
	defaultPacketInterval = 20 * time.Millisecond
	minPacketInterval     = 5 * time.Millisecond
	maxPacketInterval     = 100 * time.Millisecond
	minWatchdog           = 500 * time.Millisecond
	watchdogPackets       = 15
)

// bufferPlan is the negotiated buffering of a stream, in samples.
type bufferPlan struct {
	packet   int
	fill     int
	jitter   int
	capacity int
}

// packetSize derives the packet length from an interval hint in ms.
func packetSize(hintMs int) int {
	d := msDuration(hintMs)
	switch {
	case hintMs <= 0:
		d = defaultPacketInterval
	case d < minPacketInterval:
		d = minPacketInterval
	case d > maxPacketInterval:
		d = maxPacketInterval
	}
	return SamplesFor(d)
}

// negotiate rounds the fill and jitter hints (samples, 0 for defaults) to the
// packet and buffer constraints: the fill lies in [2*packet, buffer-packet]
// and the jitter window is at least one packet without the total exceeding
// the buffer.
func negotiate(packet, buffer, fillHint, jitterHint int) bufferPlan {
	fill := fillHint
	if fill < 2*packet {
		fill = 2 * packet
	}
	if fill > buffer-packet {
		fill = buffer - packet
	}

	jitter := jitterHint
	if jitter < packet {
		jitter = packet
	}
	if fill+jitter > buffer {
		jitter = buffer - fill
	}

	return bufferPlan{
		packet:   packet,
		fill:     fill,
		jitter:   jitter,
		capacity: buffer,
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// watchdogTimeout bounds how long a single hardware packet may take.
func watchdogTimeout(packet int) time.Duration {
	return max(minWatchdog, watchdogPackets*DurationOf(packet))
}

func (p bufferPlan) actual() Buffering {
	ms := func(samples int) int { return int(DurationOf(samples) / time.Millisecond) }
	return Buffering{
		PacketInterval: ms(p.packet),
		MinBufferFill:  ms(p.fill),
		JitterWindow:   ms(p.jitter),
	}
}
