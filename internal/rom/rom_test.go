package rom

import (
	"crypto/md5"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtcore/xtcore/internal/bus"
)

// writeROM writes data under dir and registers it in defs keyed by its MD5
// digest, mirroring how a real dump would be discovered by Load.
func writeROM(t *testing.T, dir, name string, data []byte, defs map[string]*Descriptor, d *Descriptor) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	sum := fmt.Sprintf("%x", md5.Sum(data))
	defs[sum] = d
	return sum
}

func pattern(size int, fill byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestLoadPicksHighestPriorityCompleteSet(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}

	loKey := writeROM(t, dir, "bios-lo.bin", pattern(16, 0x11), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF8000,
	})
	hiKey := writeROM(t, dir, "bios-hi.bin", pattern(16, 0x22), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF0000,
	})
	oldKey := writeROM(t, dir, "bios-old.bin", pattern(16, 0x33), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 1, Address: 0xF0000,
	})

	sets := []*Set{
		{Machine: MachineXT5160, Priority: 5, ResetCS: 0xF000, ResetIP: 0xFFF0, ROMs: []string{loKey, hiKey}},
		{Machine: MachineXT5160, Priority: 1, ResetCS: 0xF000, ResetIP: 0xFFF0, ROMs: []string{oldKey}},
	}

	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.active.Priority != 5 {
		t.Fatalf("active set priority = %d, want 5 (highest complete)", m.active.Priority)
	}
	if len(m.active.ROMs) != 2 {
		t.Fatalf("expected both halves of the priority-5 set selected, got %v", m.active.ROMs)
	}
}

func TestLoadFailsWhenRequiredHalfMissing(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	loKey := writeROM(t, dir, "bios-lo.bin", pattern(16, 0x11), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF8000,
	})
	// the high half is never written to dir, so this set can't be complete.
	sets := []*Set{
		{Machine: MachineXT5160, Priority: 5, ROMs: []string{loKey, "missing-digest"}},
	}
	defs["missing-digest"] = &Descriptor{Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF0000}

	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); !errors.Is(err, ErrRomNotFoundForMachine) {
		t.Fatalf("Load err = %v, want ErrRomNotFoundForMachine", err)
	}
}

func TestLoadIgnoresOtherMachineTypeDescriptor(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	xtKey := writeROM(t, dir, "xt.bin", pattern(16, 0xAA), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF8000,
	})
	writeROM(t, dir, "pc.bin", pattern(16, 0xBB), defs, &Descriptor{
		Type: TypeDiagnostic, Machine: MachinePC5150, Priority: 10, Address: 0xF6000,
	})

	sets := []*Set{
		{Machine: MachineXT5160, Priority: 5, ROMs: []string{xtKey}},
	}
	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.active.ROMs) != 1 {
		t.Fatalf("PC-machine descriptor should not have been selected, got %v", m.active.ROMs)
	}
}

func TestLoadRejectsMissingRequestedFeature(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	key := writeROM(t, dir, "bios.bin", pattern(16, 0x11), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF8000,
	})
	sets := []*Set{{Machine: MachineXT5160, Priority: 5, ROMs: []string{key}}}

	m := newManager(nil, MachineXT5160, []Feature{FeatureXebecHDC}, sets, defs)
	if err := m.Load(dir); !errors.Is(err, ErrRomNotFoundForFeature) {
		t.Fatalf("Load err = %v, want ErrRomNotFoundForFeature", err)
	}
}

func TestLoadRetainsOnlyHighestPriorityBASIC(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	biosKey := writeROM(t, dir, "bios.bin", pattern(16, 0x11), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0xF8000,
	})
	basicOld := writeROM(t, dir, "basic-old.bin", pattern(16, 0x22), defs, &Descriptor{
		Type: TypeBASIC, Machine: MachineXT5160, Priority: 1, Address: 0xF6000,
	})
	basicNew := writeROM(t, dir, "basic-new.bin", pattern(16, 0x33), defs, &Descriptor{
		Type: TypeBASIC, Machine: MachineXT5160, Priority: 2, Address: 0xF6000,
	})

	sets := []*Set{
		{Machine: MachineXT5160, Priority: 5, ROMs: []string{biosKey, basicOld, basicNew}},
	}
	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, k := range m.active.ROMs {
		if k == basicOld {
			t.Fatal("lower-priority BASIC ROM should have been dropped")
		}
	}
}

func TestInstallCopiesROMAndMarksCheckpoints(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	patch := &Patch{Desc: "shortcut", Checkpoint: 0x10, Address: 0x05, Bytes: []byte{0x90, 0x90}}
	key := writeROM(t, dir, "bios.bin", []byte{0, 1, 2, 3, 4, 5, 6, 7}, defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0x100,
		Patches:     []*Patch{patch},
		Checkpoints: map[uint32]string{0x10: "POST start"},
	})
	sets := []*Set{{Machine: MachineXT5160, Priority: 5, ROMs: []string{key}}}

	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := bus.New()
	m.Install(b)

	var cost int
	if got := b.ReadU8(0x100, &cost); got != 0 {
		t.Fatalf("byte at ROM base = %#02x, want 0x00", got)
	}
	if b.Flags(0x10)&bus.FlagCheckpoint == 0 {
		t.Fatal("checkpoint address should carry FlagCheckpoint after Install")
	}

	label, ok := m.CheckpointHit(b, 0x10)
	if !ok || label != "POST start" {
		t.Fatalf("CheckpointHit(0x10) = (%q, %v), want (\"POST start\", true)", label, ok)
	}
	if b.ReadU8(0x05, &cost) != 0x90 || b.ReadU8(0x06, &cost) != 0x90 {
		t.Fatal("patch bytes should have been installed at the patch address")
	}
}

func TestRevertOnRestoresOriginalBytesOnNextHit(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	shouldRevert := false
	patch := &Patch{
		Desc: "shortcut", Checkpoint: 0x10, Address: 0x102,
		Bytes:    []byte{0x90, 0x90},
		RevertOn: func(*bus.Bus) bool { return shouldRevert },
	}
	key := writeROM(t, dir, "bios.bin", []byte{0xAA, 0xBB, 0x01, 0x02, 0xCC}, defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0x100,
		Patches: []*Patch{patch},
	})
	sets := []*Set{{Machine: MachineXT5160, Priority: 5, ROMs: []string{key}}}
	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := bus.New()
	m.Install(b)

	var cost int
	m.CheckpointHit(b, 0x10)
	if b.ReadU8(0x102, &cost) != 0x90 {
		t.Fatal("patch should be installed on first hit")
	}

	shouldRevert = true
	m.CheckpointHit(b, 0x10)
	if b.ReadU8(0x102, &cost) != 0x01 {
		t.Fatal("RevertOn returning true should restore the original ROM byte")
	}
	if patch.installed {
		t.Fatal("a reverted patch should no longer report as installed")
	}

	shouldRevert = false
	m.CheckpointHit(b, 0x10)
	if b.ReadU8(0x102, &cost) != 0x90 {
		t.Fatal("a reverted patch should reinstall on the next hit")
	}
}

func TestResetPatchesAllowsReapplication(t *testing.T) {
	dir := t.TempDir()
	defs := map[string]*Descriptor{}
	patch := &Patch{Desc: "shortcut", Checkpoint: 0x10, Address: 0x00, Bytes: []byte{0xEB, 0x00}}
	key := writeROM(t, dir, "bios.bin", pattern(8, 0), defs, &Descriptor{
		Type: TypeBIOS, Machine: MachineXT5160, Priority: 5, Address: 0x100,
		Patches: []*Patch{patch},
	})
	sets := []*Set{{Machine: MachineXT5160, Priority: 5, ROMs: []string{key}}}
	m := newManager(nil, MachineXT5160, nil, sets, defs)
	if err := m.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b := bus.New()
	m.Install(b)
	m.CheckpointHit(b, 0x10)
	if !patch.installed {
		t.Fatal("patch should be marked installed after first hit")
	}
	m.ResetPatches()
	if patch.installed {
		t.Fatal("ResetPatches should clear the installed flag")
	}
}

func TestEntryPointDefaultsToHardwareResetVector(t *testing.T) {
	m := newManager(nil, MachineXT5160, nil, nil, map[string]*Descriptor{})
	cs, ip := m.EntryPoint()
	if cs != 0xFFFF || ip != 0 {
		t.Fatalf("EntryPoint before Load = %04X:%04X, want FFFF:0000", cs, ip)
	}
}
