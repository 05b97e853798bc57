// Package sound turns the PIT channel 2 / PPI speaker-gate square wave into
// a pull-based audio stream. The core only ever pushes bits at PIT tick
// rate; draining those bits into samples at the host's audio sample rate,
// and actually opening an output device, is the concern of the Player
// implementations in sound_oto.go / sound_headless.go (split by build tag,
// same as the rest of this core's audio backend).
package sound

import "sync/atomic"

// ringSize must be a power of two so index wrapping is a plain mask.
const ringSize = 1 << 15

// Ring is a single-producer/single-consumer buffer of speaker samples: the
// machine's Run loop is the only writer (via PushSample), and a Player's
// Read callback is the only reader (via ReadSample), each running on its
// own goroutine with no shared lock.
type Ring struct {
	buf        [ringSize]float32
	write      atomic.Uint64
	read       atomic.Uint64
	dropped    atomic.Uint64
	lastSample float32
}

// NewRing returns an empty Ring.
func NewRing() *Ring {
	return &Ring{}
}

// PushSample implements pit.SpeakerSink. bit is the gated PIT channel 2
// output level for this tick; it's written as a full-scale square wave
// sample. A full ring drops the oldest pending sample rather than block
// the machine's Run loop — better a click than a stall.
func (r *Ring) PushSample(bit bool) {
	var v float32
	if bit {
		v = 0.25
	} else {
		v = -0.25
	}
	w := r.write.Load()
	if w-r.read.Load() >= ringSize {
		r.read.Add(1)
		r.dropped.Add(1)
	}
	r.buf[w&(ringSize-1)] = v
	r.write.Add(1)
}

// ReadSample pulls the next pending sample, or repeats the last delivered
// sample (silence, on a freshly reset Ring) if the producer hasn't caught
// up — an underrun is silence, never a gap, per the speaker's physical
// inertia.
func (r *Ring) ReadSample() float32 {
	rd := r.read.Load()
	if r.write.Load() == rd {
		return r.lastSample
	}
	v := r.buf[rd&(ringSize-1)]
	r.read.Add(1)
	r.lastSample = v
	return v
}

// Dropped reports how many samples were discarded because the consumer
// fell behind the PIT tick rate.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Player is the host-facing audio sink: SetupPlayer attaches the Ring to
// drain, Start/Stop gate actual device playback, IsStarted reports current
// state. The two build-tagged implementations (oto-backed and headless)
// both satisfy this.
type Player interface {
	SetupPlayer(r *Ring)
	Start()
	Stop()
	Close()
	IsStarted() bool
}
