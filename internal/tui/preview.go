// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"

	"spectrail/internal/color"
	"spectrail/internal/raster"
	"spectrail/internal/render"
)

// halfBlock draws the upper pixel of a cell in the foreground colour and
// the lower one in the background colour.
const halfBlock = "▀"

// Preview is a render surface that downsamples every frame into terminal
// cells, two pixels per cell.
type Preview struct {
	mu    sync.Mutex
	cols  int
	rows  int
	cells *image.NRGBA
	view  string
	seq   uint64
}

// Compile-time check.
var _ render.Surface = (*Preview)(nil)

// NewPreview creates a preview of cols x rows cells.
func NewPreview(cols, rows int) *Preview {
	p := &Preview{}
	p.SetSize(cols, rows)
	return p
}

// SetSize changes the cell grid. Sizes below 1 are raised to 1.
func (p *Preview) SetSize(cols, rows int) {
	cols, rows = max(cols, 1), max(rows, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if cols == p.cols && rows == p.rows {
		return
	}
	p.cols, p.rows = cols, rows
	p.cells = image.NewNRGBA(image.Rect(0, 0, cols, rows*2))
	p.view = ""
}

// Size returns the cell grid.
func (p *Preview) Size() (cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// Present scales frame into the cell grid and renders it.
func (p *Preview) Present(frame *raster.MutableRaster) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	draw.ApproxBiLinear.Scale(p.cells, p.cells.Rect, frame.NRGBA(), frame.Bounds(), draw.Src, nil)

	var sb strings.Builder
	for row := range p.rows {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := range p.cols {
			top := cellColor(p.cells, col, 2*row)
			bottom := cellColor(p.cells, col, 2*row+1)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render(halfBlock))
		}
	}
	p.view = sb.String()
	p.seq++
	return nil
}

// View returns the last rendered frame and how many frames were presented.
func (p *Preview) View() (string, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view, p.seq
}

func cellColor(img *image.NRGBA, x, y int) string {
	c := color.FromStd(img.NRGBAAt(x, y))
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
