// Package radarcube models the radar cube payload produced by the
// rangeproc DPU of the MMWAVE-L-SDK: a 3-D tensor of complex samples
// indexed by range bin, virtual antenna and doppler chirp, plus the
// parser turning the raw SPI bytes into that tensor.
package radarcube

import "fmt"

// BytesPerSample is the wire size of one cube element. The firmware
// stores samples as cmplx16ImRe_t, two little-endian int16 values.
const BytesPerSample = 4

// Geometry describes the cube dimensions configured in the sensor
// firmware and everything derived from them.
type Geometry struct {
	TxAntennas     int
	RxAntennas     int
	RangeBins      int
	ChirpsPerFrame int
}

// NewGeometry validates the firmware dimensions. ChirpsPerFrame must be
// divisible by TxAntennas (TDM-MIMO chirp interleaving), and RangeBins by
// 4 to keep the SPI frame a whole number of 32-bit words per bin row.
func NewGeometry(txAntennas, rxAntennas, rangeBins, chirpsPerFrame int) (Geometry, error) {
	g := Geometry{
		TxAntennas:     txAntennas,
		RxAntennas:     rxAntennas,
		RangeBins:      rangeBins,
		ChirpsPerFrame: chirpsPerFrame,
	}
	if txAntennas <= 0 || rxAntennas <= 0 || rangeBins <= 0 || chirpsPerFrame <= 0 {
		return Geometry{}, fmt.Errorf("radar cube dimensions must all be positive, got %+v", g)
	}
	if chirpsPerFrame%txAntennas != 0 {
		return Geometry{}, fmt.Errorf("chirps per frame (%d) must be divisible by tx antennas (%d)", chirpsPerFrame, txAntennas)
	}
	if rangeBins%4 != 0 {
		return Geometry{}, fmt.Errorf("range bins (%d) must be divisible by 4", rangeBins)
	}
	return g, nil
}

// VirtualAntennas is the number of tx/rx antenna pairings.
func (g Geometry) VirtualAntennas() int {
	return g.TxAntennas * g.RxAntennas
}

// DopplerChirps is the number of chirps per virtual antenna.
func (g Geometry) DopplerChirps() int {
	return g.ChirpsPerFrame / g.TxAntennas
}

// Samples is the number of complex samples in one cube.
func (g Geometry) Samples() int {
	return g.VirtualAntennas() * g.RangeBins * g.DopplerChirps()
}

// FrameBytes is the size of one cube frame on the SPI wire.
func (g Geometry) FrameBytes() int {
	return g.Samples() * BytesPerSample
}

func (g Geometry) String() string {
	return fmt.Sprintf("tx=%d rx=%d rangebins=%d chirps=%d (virt=%d doppler=%d, %d bytes/frame)",
		g.TxAntennas, g.RxAntennas, g.RangeBins, g.ChirpsPerFrame,
		g.VirtualAntennas(), g.DopplerChirps(), g.FrameBytes())
}
