//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package sound

// OtoPlayer.Read reinterprets a []float32 sample buffer as bytes via
// unsafe.Pointer, which assumes little-endian byte order.
var _ = "xtcore's oto audio backend requires a little-endian architecture" + 1
