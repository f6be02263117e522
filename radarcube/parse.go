package radarcube

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Parse turns one raw SPI frame into an interleaved Cube.
//
// The wire carries the cube in MMWAVE-L-SDK storage order, i.e.
// cube[dopplerChirp][virtAntenna][rangeBin], each sample a cmplx16ImRe_t
// decoded as two little-endian int16 values, first the real then the
// imaginary component. The rangeproc DPU interleaves the cube in
// (rangebin, virt_antenna, doppler_chirp) logical order, so the SDK-order
// data is transposed into that layout here.
func Parse(raw []byte, geom Geometry, timestamp time.Time) (*Cube, error) {
	if len(raw) != geom.FrameBytes() {
		return nil, fmt.Errorf("frame length mismatch: expected %d bytes for %v, received %d", geom.FrameBytes(), geom, len(raw))
	}

	dopplerChirps := geom.DopplerChirps()
	virtAntennas := geom.VirtualAntennas()
	rangeBins := geom.RangeBins

	// One pass: decode int16 Im/Re pairs and scatter each sample from its
	// SDK-order position straight into the transposed layout.
	data := make([]complex64, geom.Samples())
	src := 0
	for chirp := 0; chirp < dopplerChirps; chirp++ {
		for ant := 0; ant < virtAntennas; ant++ {
			for bin := 0; bin < rangeBins; bin++ {
				re := int16(binary.LittleEndian.Uint16(raw[src:]))
				im := int16(binary.LittleEndian.Uint16(raw[src+2:]))
				dst := (bin*virtAntennas+ant)*dopplerChirps + chirp
				data[dst] = complex(float32(re), float32(im))
				src += BytesPerSample
			}
		}
	}

	return NewCube(data, [3]int{rangeBins, virtAntennas, dopplerChirps}, true, timestamp)
}
