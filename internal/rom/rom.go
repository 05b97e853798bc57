// Package rom implements ROM set discovery, selection, installation, and the
// checkpoint/patch machinery that lets the executor bypass slow BIOS RAM
// scans and checksum loops without touching ROM files on disk.
//
// ROM images are identified by MD5 digest against a static descriptor
// table (the corpus of known dumps is fixed, so a cryptographic hash isn't
// needed for collision resistance — MD5 is just a convenient fingerprint).
package rom

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xtcore/xtcore/internal/bus"
	"github.com/xtcore/xtcore/internal/logging"
)

// MachineType selects which ROM sets and descriptors apply.
type MachineType int

const (
	MachineXT5160 MachineType = iota
	MachinePC5150
)

// Feature names an optional ROM that is only loaded when the machine
// configuration actually requests the capability it provides.
type Feature int

const (
	FeatureXebecHDC Feature = iota
	FeatureEGA
	FeatureVGA
)

// Type distinguishes a ROM's role so the BASIC-highest-priority-only rule
// and the BIOS reset vector can be applied correctly.
type Type int

const (
	TypeBIOS Type = iota
	TypeBASIC
	TypeDiagnostic
)

// Order says whether a dumped image's byte order must be reversed before
// installation — some XT-era BIOS dumps were captured from the high half
// of a byte-interleaved pair and need reversing to read correctly.
type Order int

const (
	OrderNormal Order = iota
	OrderReversed
)

// biosReadCycleCost is the flat per-byte wait-state cost BIOS_READ_CYCLE_COST
// names in the original; the bus itself charges the real per-access cost on
// every read, this is only retained for descriptor-table documentation.
const biosReadCycleCost = 4

// Patch is a byte-string replacement applied once a specific checkpoint
// address is reached, bypassing ROM write protection.
//
// RevertOn is optional: when set, CheckpointHit consults it on every hit of
// an already-installed patch and restores the original bytes if it returns
// true, e.g. a checksum routine disagreeing with the patched-out fast path.
type Patch struct {
	Desc       string
	Checkpoint uint32
	Address    uint32
	Bytes      []byte
	RevertOn   func(*bus.Bus) bool

	installed bool
	original  []byte
}

// Descriptor is everything the manager knows about one ROM image before it
// has been found on disk.
type Descriptor struct {
	Type        Type
	Machine     MachineType
	Feature     *Feature
	Order       Order
	Optional    bool
	Priority    int
	Address     uint32
	Offset      int
	Size        int
	CycleCost   int
	Patches     []*Patch
	Checkpoints map[uint32]string

	present  bool
	filename string
}

// Set is one candidate combination of ROM images for a machine type, keyed
// by the MD5 digests its members are registered under in the descriptor
// table.
type Set struct {
	Machine  MachineType
	Priority int
	ResetCS  uint16
	ResetIP  uint16
	ROMs     []string
}

// Sentinel errors returned by Load.
var (
	// ErrDirNotFound is returned when the ROM directory itself can't be read.
	ErrDirNotFound = fmt.Errorf("rom: directory not found")
	// ErrRomNotFoundForMachine is returned when no candidate set had every
	// required (non-optional) ROM present in the scanned directory.
	ErrRomNotFoundForMachine = fmt.Errorf("rom: no complete ROM set found for machine type")
	// ErrRomNotFoundForFeature is returned when a requested feature has no
	// ROM providing it in the selected set.
	ErrRomNotFoundForFeature = fmt.Errorf("rom: no ROM available for requested feature")
)

// Manager owns the descriptor table, the discovered image bytes, and the
// checkpoint/patch maps for whichever set ends up active.
type Manager struct {
	log *logging.Logger

	machine           MachineType
	featuresRequested map[Feature]bool
	featuresAvailable map[Feature]bool

	sets   []*Set
	defs   map[string]*Descriptor
	images map[string][]byte

	active            *Set
	checkpointsActive map[uint32]string
	patchesActive     map[uint32]*Patch
}

// New returns a Manager preloaded with the built-in descriptor table for
// machine, ready for Load to scan a ROM directory.
func New(log *logging.Logger, machine MachineType, featuresRequested []Feature) *Manager {
	sets, defs := builtinTable()
	return newManager(log, machine, featuresRequested, sets, defs)
}

// newManager builds a Manager against an arbitrary descriptor table, so
// tests can exercise the selection algorithm against small synthetic ROM
// sets instead of the real built-in table.
func newManager(log *logging.Logger, machine MachineType, featuresRequested []Feature, sets []*Set, defs map[string]*Descriptor) *Manager {
	m := &Manager{
		log:               log,
		machine:           machine,
		featuresRequested: make(map[Feature]bool, len(featuresRequested)),
		featuresAvailable: make(map[Feature]bool),
		sets:              sets,
		defs:              defs,
		images:            make(map[string][]byte),
		checkpointsActive: make(map[uint32]string),
		patchesActive:     make(map[uint32]*Patch),
	}
	for _, f := range featuresRequested {
		m.featuresRequested[f] = true
	}
	return m
}

// Load scans dir for files matching a known ROM's MD5 digest, selects the
// highest-priority complete set for the manager's machine type, filters its
// optional ROMs against the requested feature list, retains only the
// highest-priority BASIC image, and reads the winning images into memory
// (without yet copying them onto a bus — see Install).
func (m *Manager) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDirNotFound, dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.log.Warnf("rom: could not read %s: %v", path, err)
			continue
		}
		sum := fmt.Sprintf("%x", md5.Sum(data))
		desc, ok := m.defs[sum]
		if !ok || desc.Machine != m.machine {
			continue
		}
		desc.present = true
		desc.filename = path
		m.log.Infof("rom: found %s for %s", path, sum)
	}

	var complete []*Set
	for _, set := range m.sets {
		if set.Machine != m.machine {
			continue
		}
		missing := false
		for _, key := range set.ROMs {
			if !m.defs[key].present && !m.defs[key].Optional {
				missing = true
				break
			}
		}
		if !missing {
			complete = append(complete, set)
		}
	}
	if len(complete) == 0 {
		return ErrRomNotFoundForMachine
	}
	sort.Slice(complete, func(i, j int) bool { return complete[i].Priority > complete[j].Priority })

	chosen := *complete[0]
	roms := make([]string, 0, len(chosen.ROMs))
	for _, key := range chosen.ROMs {
		if m.defs[key].present {
			roms = append(roms, key)
		}
	}
	roms = filterByFeature(roms, m.defs, m.featuresRequested)
	roms = retainHighestPriorityBASIC(roms, m.defs)
	chosen.ROMs = roms
	m.active = &chosen

	for _, key := range roms {
		desc := m.defs[key]
		data, err := os.ReadFile(desc.filename)
		if err != nil {
			return fmt.Errorf("rom: reading %s: %w", desc.filename, err)
		}
		if desc.Order == OrderReversed {
			reverse(data)
		}
		m.images[key] = data

		for addr, label := range desc.Checkpoints {
			m.checkpointsActive[addr] = label
		}
		for _, p := range desc.Patches {
			m.patchesActive[p.Checkpoint] = p
		}
		if desc.Feature != nil {
			m.featuresAvailable[*desc.Feature] = true
		}
	}

	for f := range m.featuresRequested {
		if !m.featuresAvailable[f] {
			return fmt.Errorf("%w: feature %d", ErrRomNotFoundForFeature, f)
		}
	}
	m.log.Infof("rom: loaded %d ROM(s), priority %d", len(roms), m.active.Priority)
	return nil
}

func filterByFeature(keys []string, defs map[string]*Descriptor, requested map[Feature]bool) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		f := defs[k].Feature
		if f != nil && !requested[*f] {
			continue
		}
		out = append(out, k)
	}
	return out
}

func retainHighestPriorityBASIC(keys []string, defs map[string]*Descriptor) []string {
	highest := -1
	for _, k := range keys {
		d := defs[k]
		if d.Type == TypeBASIC && d.Priority > highest {
			highest = d.Priority
		}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		d := defs[k]
		if d.Type == TypeBASIC && d.Priority != highest {
			continue
		}
		out = append(out, k)
	}
	return out
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Install copies every selected ROM's bytes onto b at its descriptor
// address (marking the range FlagROM) and sets FlagCheckpoint on every
// checkpoint and patch trigger address the active set declares.
func (m *Manager) Install(b *bus.Bus) {
	for _, key := range m.active.ROMs {
		desc := m.defs[key]
		image := m.images[key][desc.Offset:]
		b.CopyFrom(image, desc.Address, true)
		m.log.Infof("rom: mounted %s at %05X", desc.filename, desc.Address)
		for _, p := range desc.Patches {
			p.original = b.Snapshot(p.Address, len(p.Bytes))
		}
	}
	for addr := range m.checkpointsActive {
		b.SetFlags(addr, bus.FlagCheckpoint)
	}
	for addr := range m.patchesActive {
		b.SetFlags(addr, bus.FlagCheckpoint)
	}
}

// CheckpointHit is called by the executor when it is about to run an
// instruction at addr whose FlagCheckpoint bit is set. If a not-yet-applied
// patch triggers here it is installed; if an already-installed patch
// declares RevertOn and it now reports true (e.g. a checksum routine
// disagreeing with the patched-out shortcut), the original bytes are
// restored so the next hit re-installs it. Returns the trace label for this
// address, if any.
func (m *Manager) CheckpointHit(b *bus.Bus, addr uint32) (label string, ok bool) {
	if p, found := m.patchesActive[addr]; found {
		if p.installed && p.RevertOn != nil && p.RevertOn(b) {
			b.PatchFrom(p.original, p.Address)
			p.installed = false
			m.log.Tracef("rom: reverted patch %q at %05X", p.Desc, p.Address)
		} else if !p.installed {
			b.PatchFrom(p.Bytes, p.Address)
			p.installed = true
			m.log.Tracef("rom: installed patch %q at %05X", p.Desc, p.Address)
		}
	}
	label, ok = m.checkpointsActive[addr]
	return label, ok
}

// ResetPatches clears every patch's installed flag, for re-application
// after a machine reset reloads ROM images.
func (m *Manager) ResetPatches() {
	for _, p := range m.patchesActive {
		p.installed = false
	}
}

// EntryPoint returns the active set's reset vector (CS:IP the CPU should
// start executing at), or the 8088 hardware reset vector FFFF:0000 if
// nothing has been loaded yet.
func (m *Manager) EntryPoint() (cs, ip uint16) {
	if m.active == nil {
		return 0xFFFF, 0
	}
	return m.active.ResetCS, m.active.ResetIP
}
