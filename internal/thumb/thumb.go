package thumb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"

	// decoders
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"tinyfm/internal/fsutil"
	"tinyfm/internal/stream"
)

// ErrUnsupported is returned for files that are not decodable images.
var ErrUnsupported = errors.New("not a supported image")

// DefaultMax is the longest edge of a thumbnail in pixels.
const DefaultMax = 256

// maxSourcePixels bounds decode memory for hostile images.
const maxSourcePixels = 64 << 20

// Make decodes the image at cp and returns a JPEG whose longest edge is at
// most max pixels.
func Make(ctx context.Context, cp fsutil.ConfinedPath, max int) ([]byte, error) {
	if !stream.IsImage(cp.Absolute) {
		return nil, ErrUnsupported
	}
	f, st, err := fsutil.OpenRead(cp.Absolute)
	if err != nil {
		if fsutil.IsNotExist(err) || errors.Is(err, fsutil.ErrNotRegular) {
			return nil, stream.ErrNotFound
		}
		return nil, err
	}
	defer f.Close()
	if st.IsDir() {
		return nil, ErrUnsupported
	}

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, ErrUnsupported
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, ErrUnsupported
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := src.Bounds()
	nw, nh := fit(b.Dx(), b.Dy(), max)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	enc := jpeg.Options{Quality: 82}
	if err := jpeg.Encode(&out, dst, &enc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// fit scales w x h down so the longest edge is at most max, keeping aspect.
func fit(w, h, max int) (int, int) {
	if max <= 0 {
		max = DefaultMax
	}
	nw, nh := w, h
	if w > h {
		if w > max {
			nw = max
			nh = int(float64(h) * (float64(max) / float64(w)))
		}
	} else {
		if h > max {
			nh = max
			nw = int(float64(w) * (float64(max) / float64(h)))
		}
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
