package uploads_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/okian/unitry/internal/adapters/uploads"
	"github.com/smartystreets/goconvey/convey"
)

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// pngHeader returns a PNG that declares a w x h grayscale image but carries
// no pixel data past the header.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(kind string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(kind), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth, color type 0 (gray)
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func gifBytes() []byte {
	img := image.NewPaletted(image.Rect(0, 0, 800, 600), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestStorePut(t *testing.T) {
	convey.Convey("Given an upload store", t, func() {
		ctx := context.Background()
		store := uploads.NewStore(uploads.WithMaxBytes(1 << 20))

		convey.Convey("When a small PNG is uploaded", func() {
			u, revoked, err := store.Put(ctx, "s1", "look1-first.png", pngBytes(100, 50))

			convey.Convey("Then it is stored with its own bytes as preview", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(revoked, convey.ShouldBeEmpty)
				convey.So(u.ID, convey.ShouldNotBeEmpty)
				convey.So(u.ContentType, convey.ShouldEqual, "image/png")
				convey.So(u.Width, convey.ShouldEqual, 100)
				convey.So(u.Height, convey.ShouldEqual, 50)
				convey.So(u.ThumbType, convey.ShouldEqual, "image/png")
				convey.So(u.Thumb, convey.ShouldResemble, u.Data)
				convey.So(u.ETag(), convey.ShouldContainSubstring, u.ID)
			})
		})

		convey.Convey("When a large PNG is uploaded", func() {
			u, _, err := store.Put(ctx, "s1", "big.png", pngBytes(1000, 500))

			convey.Convey("Then the preview is a scaled JPEG", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(u.Width, convey.ShouldEqual, 1000)
				convey.So(u.ThumbType, convey.ShouldEqual, "image/jpeg")

				cfg, err := jpeg.DecodeConfig(bytes.NewReader(u.Thumb))
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Width, convey.ShouldEqual, uploads.ThumbnailMaxDimension)
				convey.So(cfg.Height, convey.ShouldEqual, 240)
			})
		})

		convey.Convey("When a GIF is uploaded", func() {
			u, _, err := store.Put(ctx, "s1", "anim.gif", gifBytes())

			convey.So(err, convey.ShouldBeNil)
			convey.So(u.ContentType, convey.ShouldEqual, "image/gif")
			convey.So(u.ThumbType, convey.ShouldEqual, "image/gif")
		})

		convey.Convey("When the upload is rejected", func() {
			_, _, err := store.Put(ctx, "s1", "notes.txt", []byte("just some text"))
			convey.So(errors.Is(err, uploads.ErrUnsupported), convey.ShouldBeTrue)

			_, _, err = store.Put(ctx, "s1", "empty.png", nil)
			convey.So(errors.Is(err, uploads.ErrEmpty), convey.ShouldBeTrue)

			_, _, err = store.Put(ctx, "s1", "huge.png", make([]byte, 2<<20))
			convey.So(errors.Is(err, uploads.ErrTooLarge), convey.ShouldBeTrue)

			_, _, err = store.Put(ctx, "s1", "bomb.png", pngHeader(12000, 12000))
			convey.So(errors.Is(err, uploads.ErrTooLarge), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "12000x12000")

			broken := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
			_, _, err = store.Put(ctx, "s1", "broken.png", broken)
			convey.So(errors.Is(err, uploads.ErrDecode), convey.ShouldBeTrue)

			convey.So(store.Len(), convey.ShouldEqual, 0)
		})
	})
}

func TestStoreImageLimits(t *testing.T) {
	convey.Convey("Given a store with small image limits", t, func() {
		ctx := context.Background()
		store := uploads.NewStore(uploads.WithThumbnailSize(64), uploads.WithMaxPixels(100_000))

		convey.Convey("When an image within the pixel budget is uploaded", func() {
			u, _, err := store.Put(ctx, "s1", "wide.png", pngBytes(300, 150))

			convey.Convey("Then the preview follows the configured size", func() {
				convey.So(err, convey.ShouldBeNil)
				cfg, err := jpeg.DecodeConfig(bytes.NewReader(u.Thumb))
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Width, convey.ShouldEqual, 64)
				convey.So(cfg.Height, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When an image exceeds the pixel budget", func() {
			_, _, err := store.Put(ctx, "s1", "tall.png", pngBytes(400, 300))

			convey.Convey("Then it is rejected before decoding", func() {
				convey.So(errors.Is(err, uploads.ErrTooLarge), convey.ShouldBeTrue)
				convey.So(store.Len(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a GIF exceeds the pixel budget", func() {
			_, _, err := store.Put(ctx, "s1", "anim.gif", gifBytes())

			convey.So(errors.Is(err, uploads.ErrTooLarge), convey.ShouldBeTrue)
		})
	})
}

func TestStoreLastUploadWins(t *testing.T) {
	convey.Convey("Given a session with an upload", t, func() {
		ctx := context.Background()
		store := uploads.NewStore()
		first, _, err := store.Put(ctx, "s1", "a.png", pngBytes(10, 10))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the session uploads again", func() {
			second, revoked, err := store.Put(ctx, "s1", "b.png", pngBytes(20, 20))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the previous upload is revoked", func() {
				convey.So(revoked, convey.ShouldEqual, first.ID)
				_, err := store.Get(ctx, first.ID)
				convey.So(err, convey.ShouldEqual, uploads.ErrNotFound)

				cur, err := store.Current(ctx, "s1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(cur.ID, convey.ShouldEqual, second.ID)
				convey.So(store.Len(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When another session uploads", func() {
			_, revoked, _ := store.Put(ctx, "s2", "c.png", pngBytes(10, 10))

			convey.So(revoked, convey.ShouldBeEmpty)
			convey.So(store.Len(), convey.ShouldEqual, 2)
		})

		convey.Convey("When the session revokes explicitly", func() {
			convey.So(store.Revoke(ctx, "s1"), convey.ShouldBeTrue)
			convey.So(store.Revoke(ctx, "s1"), convey.ShouldBeFalse)
			_, err := store.Current(ctx, "s1")
			convey.So(err, convey.ShouldEqual, uploads.ErrNotFound)
		})
	})
}

func TestStoreSweep(t *testing.T) {
	convey.Convey("Given uploads of different ages", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		clock := now.Add(-time.Hour)
		store := uploads.NewStore(uploads.WithTTL(30*time.Minute), uploads.WithClock(func() time.Time { return clock }))

		_, _, _ = store.Put(ctx, "old", "a.png", pngBytes(10, 10))
		clock = now
		_, _, _ = store.Put(ctx, "new", "b.png", pngBytes(10, 10))

		convey.So(store.Sweep(now), convey.ShouldEqual, 1)
		convey.So(store.Len(), convey.ShouldEqual, 1)
		_, err := store.Current(ctx, "old")
		convey.So(err, convey.ShouldEqual, uploads.ErrNotFound)

		convey.So(store.RevokeAll(), convey.ShouldEqual, 1)
		convey.So(store.Len(), convey.ShouldEqual, 0)
	})
}
