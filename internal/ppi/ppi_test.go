package ppi

import "testing"

type fakePIC struct {
	requested []int
	cleared   []int
}

func (f *fakePIC) RequestInterrupt(irq int) { f.requested = append(f.requested, irq) }
func (f *fakePIC) ClearInterrupt(irq int)   { f.cleared = append(f.cleared, irq) }

func newTestPPI() (*PPI, *fakePIC) {
	pic := &fakePIC{}
	return New(nil, pic, Config{Model: ModelXT5160, Video: VideoCGAHires, Floppies: 2}), pic
}

func TestPortAReturnsKeyboardByteOnXT(t *testing.T) {
	p, pic := newTestPPI()
	p.InjectScancode(0x1E) // 'A' make code
	if got := p.InU8(PortA); got != 0x1E {
		t.Fatalf("Port A = %#02x, want 0x1E", got)
	}
	if len(pic.requested) != 1 || pic.requested[0] != 1 {
		t.Fatalf("expected IRQ1 requested, got %v", pic.requested)
	}
}

func TestPortBBit7AckClearsKeyboardByte(t *testing.T) {
	p, pic := newTestPPI()
	p.InjectScancode(0x9E) // release code
	p.OutU8(PortB, portBKBClear)
	p.Run(1) // clearKeyboard is processed on the next Run tick

	if got := p.InU8(PortA); got != 0 {
		t.Fatalf("Port A after ack = %#02x, want 0x00", got)
	}
	if len(pic.cleared) != 1 || pic.cleared[0] != 1 {
		t.Fatalf("expected IRQ1 cleared, got %v", pic.cleared)
	}
}

func TestKeyboardSelfTestSendsAAAfterHoldAndDelay(t *testing.T) {
	p, pic := newTestPPI()

	p.OutU8(PortB, 0) // clock line pulled low (bit 6 clear)
	p.Run(kbResetUs + 1)
	p.OutU8(PortB, portBPullKBLow) // clock line released

	if p.kbDoReset != true {
		t.Fatal("releasing the clock after a long-enough hold should arm the reset byte")
	}

	p.Run(kbResetDelayUs / 2)
	if p.InU8(PortA) == 0xAA {
		t.Fatal("reset byte sent too early")
	}
	p.Run(kbResetDelayUs)
	if got := p.InU8(PortA); got != 0xAA {
		t.Fatalf("Port A after self-test delay = %#02x, want 0xAA", got)
	}
	if len(pic.requested) == 0 || pic.requested[len(pic.requested)-1] != 1 {
		t.Fatal("expected IRQ1 on reset byte delivery")
	}
}

func TestShortClockLowDoesNotTriggerReset(t *testing.T) {
	p, _ := newTestPPI()
	p.OutU8(PortB, 0)
	p.Run(100) // well under the 10ms hold requirement
	p.OutU8(PortB, portBPullKBLow)

	if p.kbDoReset {
		t.Fatal("a short clock-low pulse must not arm the keyboard reset")
	}
}

func TestPortCCombinesSpeakerAndTimerBits(t *testing.T) {
	p, _ := newTestPPI()
	p.SetSpeakerMonitor(true)
	p.SetTimerOutput(true)

	v := p.InU8(PortC)
	if v&(1<<4) == 0 {
		t.Fatal("speaker monitor bit (Port C bit 4) should be set on XT")
	}
	if v&(1<<5) == 0 {
		t.Fatal("timer output bit (Port C bit 5) should be set")
	}
}

func TestKeyboardIdleReflectsAcknowledgement(t *testing.T) {
	p, _ := newTestPPI()
	if !p.KeyboardIdle() {
		t.Fatal("a freshly reset PPI should report keyboard idle")
	}
	p.InjectScancode(0x1E)
	if p.KeyboardIdle() {
		t.Fatal("an unacknowledged scan code should report not idle")
	}
	p.OutU8(PortB, portBKBClear)
	p.Run(1)
	if !p.KeyboardIdle() {
		t.Fatal("acknowledging the byte should return the keyboard to idle")
	}
}

func TestSpeakerGateAndEnableReflectPortB(t *testing.T) {
	p, _ := newTestPPI()
	p.OutU8(PortB, portBTimer2Gate|portBSpeakerData|portBPullKBLow)

	if !p.SpeakerGate() {
		t.Fatal("Port B bit 0 should report as the PIT channel 2 gate")
	}
	if !p.SpeakerEnable() {
		t.Fatal("Port B bit 1 should report as the speaker enable line")
	}
}
