//go:build !headless

package sound

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer drains a Ring through an actual host audio device via oto.
// Read is called back on oto's own goroutine, so the Ring pointer is held
// atomically and the sample buffer is pre-allocated to keep that path
// allocation-free.
type OtoPlayer struct {
	ctx       *oto.Context
	player    *oto.Player
	ring      atomic.Pointer[Ring]
	sampleBuf []float32
	started   bool
	mutex     sync.Mutex
}

// NewOtoPlayer opens an oto context at sampleRate, mono, float32 samples.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}

	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, err
	}
	<-ready

	return &OtoPlayer{ctx: ctx}, nil
}

// SetupPlayer attaches r as the sample source and creates the oto player.
func (op *OtoPlayer) SetupPlayer(r *Ring) {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	op.ring.Store(r)
	op.player = op.ctx.NewPlayer(op)
	op.sampleBuf = make([]float32, 4096)
}

// Read implements io.Reader for oto's pull-based playback loop.
func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	r := op.ring.Load()
	if r == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	numSamples := len(p) / 4
	if len(op.sampleBuf) < numSamples {
		op.sampleBuf = make([]float32, numSamples)
	}
	samples := op.sampleBuf[:numSamples]
	for i := 0; i < numSamples; i++ {
		samples[i] = r.ReadSample()
	}

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (op *OtoPlayer) Start() {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if !op.started && op.player != nil {
		op.player.Play()
		op.started = true
	}
}

func (op *OtoPlayer) Stop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if op.started && op.player != nil {
		op.player.Close()
		op.started = false
	}
}

func (op *OtoPlayer) Close() {
	op.Stop()
	op.mutex.Lock()
	defer op.mutex.Unlock()
	op.player = nil
}

func (op *OtoPlayer) IsStarted() bool {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.started
}
