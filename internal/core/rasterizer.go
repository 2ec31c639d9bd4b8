package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// PdftoppmRasterizer renders pages with poppler's pdftoppm binary. The page
// is scaled to an exact pixel size, so the caller's budget is authoritative.
type PdftoppmRasterizer struct {
	Binary string
}

// NewPdftoppmRasterizer returns a rasterizer using binary, or "pdftoppm" from PATH.
func NewPdftoppmRasterizer(binary string) *PdftoppmRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &PdftoppmRasterizer{Binary: binary}
}

// Rasterize implements Rasterizer.
func (p *PdftoppmRasterizer) Rasterize(ctx context.Context, path string, pageIndex, widthPx, heightPx int) ([]byte, error) {
	outDir, err := os.MkdirTemp("", "legato-render-")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	page := strconv.Itoa(pageIndex + 1)
	prefix := filepath.Join(outDir, "page")

	cmd := exec.CommandContext(ctx, p.Binary,
		"-f", page,
		"-l", page,
		"-png",
		"-singlefile",
		"-scale-to-x", strconv.Itoa(widthPx),
		"-scale-to-y", strconv.Itoa(heightPx),
		path,
		prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("pdftoppm: %w", err)
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, msg)
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	return data, nil
}
