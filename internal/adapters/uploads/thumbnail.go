package uploads

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// ThumbnailMaxDimension bounds the longer thumbnail side.
const ThumbnailMaxDimension = 480

// MaxPixels bounds width*height of an accepted image. The byte limit alone
// does not bound the decoded size of a well compressed image.
const MaxPixels = 40_000_000

const thumbnailQuality = 85

// thumbnail returns preview bytes and their content type. JPEG and PNG
// inputs are scaled down and re-encoded as JPEG; GIF and WebP are kept as is.
// Width and height are the dimensions of the original image. Images with
// more than maxPixels pixels fail with ErrTooLarge before any decoding.
func thumbnail(data []byte, contentType string, maxDim, maxPixels int) (thumb []byte, thumbType string, width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	width, height = cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		return nil, "", 0, 0, fmt.Errorf("%w: empty %dx%d image", ErrDecode, width, height)
	}
	if int64(width)*int64(height) > int64(maxPixels) {
		return nil, "", 0, 0, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, width, height, maxPixels)
	}

	if contentType == "image/gif" || contentType == "image/webp" {
		return data, contentType, width, height, nil
	}
	if width <= maxDim && height <= maxDim {
		return data, contentType, width, height, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	w, h := scaledDimensions(width, height, maxDim)
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, "", 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), "image/jpeg", width, height, nil
}

func scaledDimensions(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
