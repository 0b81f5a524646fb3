// Package frames converts between models.Frame and OpenCV so the rest of the
// tree stays free of cgo.
package frames

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"airfield-sentinel-go/internal/models"
)

const DefaultPNGCompression = 3

// PNGEncoder writes BGR24 frames as lossless PNG.
type PNGEncoder struct {
	Compression int
}

func (e PNGEncoder) Encode(f *models.Frame) ([]byte, error) {
	mat, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.PNGFileExt, mat, []int{gocv.IMWritePngCompression, e.Compression})
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// EncodeJPEG is used for camera previews where size matters more than fidelity.
func EncodeJPEG(f *models.Frame, quality int) ([]byte, error) {
	mat, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func toMat(f *models.Frame) (gocv.Mat, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return gocv.Mat{}, fmt.Errorf("invalid frame")
	}
	if len(f.Data) != f.Width*f.Height*3 {
		return gocv.Mat{}, fmt.Errorf("frame is %dx%d but holds %d bytes", f.Width, f.Height, len(f.Data))
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("mat from frame: %w", err)
	}
	return mat, nil
}

// copyMat resizes src to dst's dimensions when needed and copies the pixels.
func copyMat(src gocv.Mat, dst *models.Frame) error {
	if src.Cols() == dst.Width && src.Rows() == dst.Height {
		return copyBytes(src, dst)
	}
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(dst.Width, dst.Height), 0, 0, gocv.InterpolationLinear)
	return copyBytes(resized, dst)
}

func copyBytes(m gocv.Mat, dst *models.Frame) error {
	data := m.ToBytes()
	if len(data) != len(dst.Data) {
		return fmt.Errorf("mat holds %d bytes, frame wants %d", len(data), len(dst.Data))
	}
	copy(dst.Data, data)
	return nil
}
