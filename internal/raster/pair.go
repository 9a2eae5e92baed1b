// SPDX-License-Identifier: MIT
package raster

// Pair is the ping-pong frame buffer of one render session. Exactly one
// raster is current (written this frame) and the other previous (the last
// fully synthesized frame); Flip swaps the roles.
type Pair struct {
	frames [2]*MutableRaster
	flop   bool
}

// NewPair allocates two zeroed rasters of equal size.
func NewPair(width, height int) (*Pair, error) {
	a, err := New(width, height)
	if err != nil {
		return nil, err
	}
	b, err := New(width, height)
	if err != nil {
		return nil, err
	}
	return &Pair{frames: [2]*MutableRaster{a, b}, flop: true}, nil
}

// Flip swaps the roles and returns the new previous and current rasters.
// The returned previous raster is the one that was current before the call.
func (p *Pair) Flip() (previous Raster, current *MutableRaster) {
	p.flop = !p.flop
	return p.Previous(), p.Current()
}

// Current returns the raster being written this frame.
func (p *Pair) Current() *MutableRaster {
	if p.flop {
		return p.frames[0]
	}
	return p.frames[1]
}

// Previous returns the last completed frame.
func (p *Pair) Previous() *MutableRaster {
	if p.flop {
		return p.frames[1]
	}
	return p.frames[0]
}

func (p *Pair) Width() int  { return p.frames[0].width }
func (p *Pair) Height() int { return p.frames[0].height }
