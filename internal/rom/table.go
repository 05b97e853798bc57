package rom

// builtinTable returns the known-ROM descriptor table and the candidate
// RomSets that select among them. It mirrors a small but representative
// slice of a much larger real-world table: the XT 5160 09MAY86 BIOS pair,
// its Xebec hard-disk controller option ROM, and a higher-priority PC 5150
// diagnostic ROM used to exercise cross-machine-type filtering and
// priority ranking.
func builtinTable() ([]*Set, map[string]*Descriptor) {
	xebec := FeatureXebecHDC

	defs := map[string]*Descriptor{
		// IBM XT 5160, BIOS dated 09 May 1986, low half (u18 socket).
		"9696472098999c02217bf922786c1f4a": {
			Type:      TypeBIOS,
			Machine:   MachineXT5160,
			Order:     OrderNormal,
			Priority:  5,
			Address:   0xF8000,
			Size:      32768,
			CycleCost: biosReadCycleCost,
		},
		// Same BIOS, high half (u19 socket) — carries the checkpoint/patch
		// table, since the POST entry point and checksum/RAM-test routines
		// it short-circuits both live in this half.
		"df9f29de490d7f269a6405df1fed69b7": {
			Type:      TypeBIOS,
			Machine:   MachineXT5160,
			Order:     OrderNormal,
			Priority:  5,
			Address:   0xF0000,
			Size:      32768,
			CycleCost: biosReadCycleCost,
			Patches: []*Patch{
				{
					Desc:       "Patch ROS checksum routine",
					Checkpoint: 0xFE0AC,
					Address:    0xFE0D5,
					Bytes:      []byte{0xEB, 0x00},
				},
				{
					Desc:       "Patch RAM Check Routine for faster boot",
					Checkpoint: 0xFE499,
					Address:    0xFE4EA,
					Bytes:      []byte{0x90, 0x90, 0x90, 0x90, 0x90},
				},
			},
			Checkpoints: map[uint32]string{
				0xFE05B: "POST start",
				0xFE0AC: "ROS checksum",
				0xFE138: "8237 DMA test",
				0xFE1C8: "8259 PIC test",
				0xFE216: "RAM refresh test",
				0xFE2B5: "base 16K RAM test",
				0xFE33B: "8254 PIT test",
				0xFE3A6: "CRT test",
				0xFE40C: "ROS checksum II",
				0xFE499: "RAM size determination",
				0xFE4EA: "RAM test",
				0xFE546: "8259 mask test",
				0xFE5B9: "keyboard test",
				0xFE630: "video I/O test",
				0xFE666: "optional ROM scan",
				0xFE6B0: "diskette attachment test",
				0xFE70C: "bootstrap loader",
				0xFE75F: "INT 19h boot",
			},
		},
		// Xebec hard-disk controller BIOS extension, mapped at C800:0 when
		// present; optional, so an XT boot without a hard disk still counts
		// as a complete set.
		"66631d1a095d8d0d54cc917fbdece684": {
			Type:      TypeBIOS,
			Machine:   MachineXT5160,
			Feature:   &xebec,
			Optional:  true,
			Priority:  0,
			Address:   0xC8000,
			Size:      4096,
			CycleCost: biosReadCycleCost,
			Checkpoints: map[uint32]string{
				0xC8000: "Xebec HDC ROM entry",
				0xC8003: "Xebec HDC init",
				0xC8100: "Xebec HDC INT 13h handler",
				0xC8200: "Xebec HDC self-test",
				0xC83FC: "Xebec HDC ROM end",
			},
		},
		// A PC 5150 power-on diagnostics cartridge, used only to give the
		// priority/completeness selection something else to rank against a
		// different machine type.
		"2ad31da203a97aed6ea889912dd35824": {
			Type:      TypeDiagnostic,
			Machine:   MachinePC5150,
			Priority:  10,
			Address:   0xF6000,
			Size:      8192,
			CycleCost: biosReadCycleCost,
		},
	}

	sets := []*Set{
		{
			Machine:  MachineXT5160,
			Priority: 5,
			ResetCS:  0xF000,
			ResetIP:  0xFFF0,
			ROMs: []string{
				"9696472098999c02217bf922786c1f4a",
				"df9f29de490d7f269a6405df1fed69b7",
				"66631d1a095d8d0d54cc917fbdece684",
			},
		},
		{
			Machine:  MachinePC5150,
			Priority: 10,
			ResetCS:  0xF000,
			ResetIP:  0xFFF0,
			ROMs: []string{
				"2ad31da203a97aed6ea889912dd35824",
			},
		},
	}

	return sets, defs
}
