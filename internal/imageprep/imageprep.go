// Package imageprep normalizes and enhances a raw meal photo into a compact
// payload suitable for remote vision models. Enhancement is best-effort: a
// defective step is skipped, and in the worst case the original image passes
// through unmodified. Analysis must never abort because of an enhancement
// defect.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ValidationError reports input that cannot be analyzed at all: empty data,
// an undecodable buffer, a zero-dimension image, or an oversized upload.
// It is surfaced immediately and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid image: " + e.Reason
}

// Payload is the transmissible form of a prepared image. It is scoped to a
// single analysis call; nothing is cached across calls.
type Payload struct {
	Bytes    []byte
	MimeType string
	Width    int
	Height   int
}

// Base64 returns the payload encoded for JSON transport.
func (p *Payload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Bytes)
}

// Options holds the enhancement and sizing knobs. The numeric thresholds are
// empirically tuned; treat them as configuration, not design facts.
type Options struct {
	// MaxDimension bounds the longer image side after resize.
	MaxDimension int
	// JPEGQuality is the encoder quality for the outgoing payload.
	JPEGQuality int
	// LowLightThreshold is the mean luma in [0,1] below which a brightness
	// boost is applied.
	LowLightThreshold float64
	// LowLightTarget is the mean luma the boost aims for.
	LowLightTarget float64
	// MaxBrightnessBoost caps the boost multiplier to avoid clipping.
	MaxBrightnessBoost float64
	// ContrastBoost and SaturationBoost are percentages passed to the
	// respective adjustments.
	ContrastBoost   float64
	SaturationBoost float64
	// SharpenSigma controls the sharpening pass; DenoiseSigma the
	// edge-preserving blur applied before re-sharpening.
	SharpenSigma float64
	DenoiseSigma float64
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{
		MaxDimension:       1024,
		JPEGQuality:        85,
		LowLightThreshold:  0.35,
		LowLightTarget:     0.45,
		MaxBrightnessBoost: 2.0,
		ContrastBoost:      12,
		SaturationBoost:    10,
		SharpenSigma:       0.8,
		DenoiseSigma:       0.6,
	}
}

type Preparer struct {
	opts   Options
	logger *slog.Logger
}

func NewPreparer(opts Options, logger *slog.Logger) *Preparer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultOptions().MaxDimension
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	return &Preparer{opts: opts, logger: logger}
}

// Prepare decodes, enhances, resizes, and re-encodes a raw image. It fails
// only with *ValidationError for input that is not a usable image; every
// enhancement failure degrades instead of propagating.
func (p *Preparer) Prepare(data []byte) (*Payload, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "empty image data"}
	}

	img, srcMime, err := decodeImage(data)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, &ValidationError{Reason: "zero-dimension image"}
	}

	enhanced := p.enhance(img)
	resized := p.applyStep(enhanced, "resize", p.resize)

	if payload, err := p.encode(resized); err == nil {
		return payload, nil
	} else {
		p.logger.Warn("payload encode failed, retrying without enhancement", "error", err)
	}

	// Enhancement produced something unencodable; fall back to resize-only.
	if payload, err := p.encode(p.applyStep(img, "resize", p.resize)); err == nil {
		return payload, nil
	}

	// Last resort: pass the original bytes through unmodified.
	p.logger.Warn("resize-only encode failed, passing original image through")
	return &Payload{
		Bytes:    data,
		MimeType: srcMime,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// enhance runs the per-image enhancement profile. The profile is derived
// from the image itself and never cached: two visually distinct photos must
// never share adjustment parameters.
func (p *Preparer) enhance(img image.Image) image.Image {
	out := img

	out = p.applyStep(out, "low-light boost", func(in image.Image) image.Image {
		mean := meanLuma(in)
		if mean >= p.opts.LowLightThreshold || mean <= 0 {
			return in
		}
		boost := p.opts.LowLightTarget / mean
		if boost > p.opts.MaxBrightnessBoost {
			boost = p.opts.MaxBrightnessBoost
		}
		pct := (boost - 1) * 100
		if pct > 100 {
			pct = 100
		}
		return imaging.AdjustBrightness(in, pct)
	})

	out = p.applyStep(out, "contrast", func(in image.Image) image.Image {
		return imaging.AdjustContrast(in, p.opts.ContrastBoost)
	})

	out = p.applyStep(out, "saturation", func(in image.Image) image.Image {
		return imaging.AdjustSaturation(in, p.opts.SaturationBoost)
	})

	// Mild blur followed by a sharpen pass counters sensor noise and motion
	// blur while keeping food edges usable for the model.
	out = p.applyStep(out, "denoise", func(in image.Image) image.Image {
		return imaging.Sharpen(imaging.Blur(in, p.opts.DenoiseSigma), p.opts.SharpenSigma)
	})

	return out
}

// applyStep runs one transform, treating a panic or nil result as a skipped
// step. The incoming image is returned unchanged on failure.
func (p *Preparer) applyStep(img image.Image, name string, fn func(image.Image) image.Image) (out image.Image) {
	out = img
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("enhancement step failed, skipping", "step", name, "panic", r)
		}
	}()
	if res := fn(img); res != nil {
		out = res
	}
	return out
}

func (p *Preparer) resize(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.opts.MaxDimension && h <= p.opts.MaxDimension {
		return img
	}
	if w >= h {
		return imaging.Resize(img, p.opts.MaxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, p.opts.MaxDimension, imaging.Lanczos)
}

func (p *Preparer) encode(img image.Image) (*Payload, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	b := img.Bounds()
	return &Payload{
		Bytes:    buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// decodeImage decodes via the registered stdlib/x-image decoders, with an
// explicit WebP fallback for encoders that omit the VP8X header variants the
// registered decoder accepts.
func decodeImage(data []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, "image/" + format, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "image/webp", nil
	}
	return nil, "", fmt.Errorf("unknown or unsupported image format")
}

// meanLuma samples the image on a coarse grid and returns mean luminance in
// [0,1]. Sampling keeps the cost flat regardless of input size.
func meanLuma(img image.Image) float64 {
	const grid = 64
	b := img.Bounds()
	stepX := b.Dx() / grid
	if stepX < 1 {
		stepX = 1
	}
	stepY := b.Dy() / grid
	if stepY < 1 {
		stepY = 1
	}

	var sum float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			sum += luma / 65535.0
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
