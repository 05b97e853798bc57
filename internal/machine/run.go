package machine

import "github.com/xtcore/xtcore/internal/cpu"

// ExecState is the debugger-visible run state.
type ExecState int

const (
	Paused ExecState = iota
	Running
	BreakpointHit
	Halted
)

// PendingOp is the operation Run should perform on its next call.
type PendingOp int

const (
	PendingNone PendingOp = iota
	PendingStep
	PendingStepOver
	PendingRun
	PendingReset
)

// ExecutionControl is the small state container the host holds across Run
// calls: what the machine is doing, and what it should do next.
type ExecutionControl struct {
	State   ExecState
	Pending PendingOp

	hasTransientBP bool
	transientBP    uint32
}

// Run executes at most budget CPU cycles' worth of instructions, honoring
// ctl.Pending and stopping early on a halt, exception, or breakpoint.
// breakpointAddr is a permanent linear-address breakpoint; 0 with no ROM
// or user code ever mapped there is effectively "none set" in practice,
// but callers that need "no breakpoint" unambiguously should pass an
// address outside the 20-bit address space.
func (m *Machine) Run(budget int, ctl *ExecutionControl, breakpointAddr uint32) cpu.StepOutcome {
	if ctl.Pending == PendingReset {
		m.Reset()
		*ctl = ExecutionControl{State: Paused}
		return cpu.StepOutcome{Result: cpu.Okay}
	}

	pending := ctl.Pending
	ctl.Pending = PendingNone
	ctl.State = Running

	charged := 0
	first := true

	for {
		if m.CPU.Halted {
			if !m.CPU.IF() {
				ctl.State = Halted
				return cpu.StepOutcome{Result: cpu.Halt, CyclesCharged: charged}
			}
			m.tickPeripherals(1)
			charged++
			if m.PIC.Pending() {
				m.sampleInterrupt()
			} else if charged >= budget {
				ctl.State = Paused
				return cpu.StepOutcome{Result: cpu.Okay, CyclesCharged: charged}
			} else {
				continue
			}
		} else {
			m.sampleInterrupt()
		}

		pc := cpu.Linear(m.CPU.CS, m.CPU.IP)
		if !first && (pc == breakpointAddr || (ctl.hasTransientBP && pc == ctl.transientBP)) {
			ctl.State = BreakpointHit
			ctl.hasTransientBP = false
			return cpu.StepOutcome{Result: cpu.BreakpointHit, CyclesCharged: charged}
		}
		if label, ok := m.ROM.CheckpointHit(m.Bus, pc); ok {
			m.log.Tracef("checkpoint hit: %s", label)
		}

		callDepth := len(m.CPU.CallStack)
		outcome := m.CPU.Step()
		charged += outcome.CyclesCharged
		m.tickPeripherals(outcome.CyclesCharged)
		first = false

		if pending == PendingStepOver && !ctl.hasTransientBP {
			if len(m.CPU.CallStack) > callDepth {
				ctl.transientBP = m.CPU.CallStack[len(m.CPU.CallStack)-1]
				ctl.hasTransientBP = true
				pending = PendingRun // resume like Run until the transient breakpoint hits
			} else {
				ctl.State = Paused
				return outcome
			}
		} else if pending == PendingStep {
			ctl.State = Paused
			return outcome
		}

		switch outcome.Result {
		case cpu.Halt:
			ctl.State = Halted
			return outcome
		case cpu.Exception, cpu.UnsupportedOpcode, cpu.ExecutionError:
			ctl.State = Paused
			return outcome
		}

		if charged >= budget {
			ctl.State = Paused
			return outcome
		}
	}
}
