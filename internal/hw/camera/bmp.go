package camera

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// WriteBMP encodes img as a bitmap at path. The image is fitted to res first
// if its size differs, so every snapshot has the configured resolution.
//
// The file is written next to path and renamed into place: a reader polling
// path sees either the previous snapshot or the new one, never a partial file.
func WriteBMP(path string, img image.Image, res Resolution) error {
	if sz := img.Bounds().Size(); sz.X != res.Width || sz.Y != res.Height {
		img = imaging.Fill(img, res.Width, res.Height, imaging.Center, imaging.Lanczos)
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := imaging.Encode(tmp, img, imaging.BMP); err != nil {
		tmp.Close()
		return fmt.Errorf("encode bmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
