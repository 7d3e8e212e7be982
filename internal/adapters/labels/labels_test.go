package labels_test

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/okian/unitry/internal/adapters/labels"
	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const manLabels = `{
  "hat1.jpg": {"label": "棒球帽", "content": "深色棒球帽"},
  "cloth1.jpg": {"label": "夹克", "content": "短款夹克"}
}`

// countingFS counts Open calls on top of a MapFS. It only exposes Open so
// fs.ReadFile cannot bypass the counter.
type countingFS struct {
	files fstest.MapFS
	opens atomic.Int32
	delay time.Duration
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	time.Sleep(c.delay)
	return c.files.Open(name)
}

// warnCounter counts Warn calls and drops everything else.
type warnCounter struct{ warns *atomic.Int32 }

func (w warnCounter) Info(context.Context, string, ...logger.Field)  {}
func (w warnCounter) Error(context.Context, string, ...logger.Field) {}
func (w warnCounter) Debug(context.Context, string, ...logger.Field) {}
func (w warnCounter) Fatal(context.Context, string, ...logger.Field) {}
func (w warnCounter) Warn(context.Context, string, ...logger.Field)  { w.warns.Add(1) }
func (w warnCounter) Named(string) logger.Logger                     { return w }

func TestLoader(t *testing.T) {
	Convey("Given a loader over an assets tree", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		fsys := &countingFS{files: fstest.MapFS{
			"outfits_man/label.json":   {Data: []byte(manLabels)},
			"outfits_woman/label.json": {Data: []byte(`[1, 2]`)},
		}}
		l := labels.NewLoader(fsys, labels.WithTTL(time.Minute), labels.WithClock(func() time.Time { return now }))

		Convey("When loading a valid file", func() {
			set, err := l.Load(ctx, catalog.Man)

			So(err, ShouldBeNil)
			So(set["hat1.jpg"], ShouldResemble, labels.Label{Label: "棒球帽", Content: "深色棒球帽"})
			So(len(set), ShouldEqual, 2)

			Convey("Then the file is read once within the TTL", func() {
				_, _ = l.Load(ctx, catalog.Man)
				So(fsys.opens.Load(), ShouldEqual, 1)
			})

			Convey("Then it is read again after the TTL", func() {
				now = now.Add(2 * time.Minute)
				_, _ = l.Load(ctx, catalog.Man)
				So(fsys.opens.Load(), ShouldEqual, 2)
			})

			Convey("Then Invalidate forces a reread", func() {
				l.Invalidate()
				_, _ = l.Load(ctx, catalog.Man)
				So(fsys.opens.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the file is malformed", func() {
			_, err := l.Load(ctx, catalog.Woman)
			So(errors.Is(err, labels.ErrDecode), ShouldBeTrue)

			Convey("Then Lookup reports no label", func() {
				_, ok := l.Lookup(ctx, catalog.Woman, "hat2.jpg")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the file is missing", func() {
			delete(fsys.files, "outfits_man/label.json")
			_, err := l.Load(ctx, catalog.Man)
			So(errors.Is(err, fs.ErrNotExist), ShouldBeTrue)
		})

		Convey("When looking up labels", func() {
			lbl, ok := l.Lookup(ctx, catalog.Man, "cloth1.jpg")
			So(ok, ShouldBeTrue)
			So(lbl.Label, ShouldEqual, "夹克")

			_, ok = l.Lookup(ctx, catalog.Man, "pants1.jpg")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestLoaderFailureLogging(t *testing.T) {
	Convey("Given a loader whose label file is missing", t, func() {
		ctx := context.Background()
		warns := new(atomic.Int32)
		l := labels.NewLoader(fstest.MapFS{}, labels.WithTTL(time.Minute), labels.WithLogger(warnCounter{warns: warns}))

		Convey("When every slot of a page looks up a label", func() {
			for _, name := range []string{"hat1.jpg", "cloth1.jpg", "pants1.jpg"} {
				_, ok := l.Lookup(ctx, catalog.Man, name)
				So(ok, ShouldBeFalse)
			}
			_, err := l.Load(ctx, catalog.Man)
			So(err, ShouldNotBeNil)

			Convey("Then the failed read is logged once", func() {
				So(warns.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestLoaderConcurrentLoads(t *testing.T) {
	Convey("Given many concurrent loads of one gender", t, func() {
		fsys := &countingFS{
			files: fstest.MapFS{"outfits_man/label.json": {Data: []byte(manLabels)}},
			delay: 20 * time.Millisecond,
		}
		l := labels.NewLoader(fsys, labels.WithTTL(0))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = l.Load(context.Background(), catalog.Man)
			}()
		}
		wg.Wait()

		Convey("Then they share a single read", func() {
			So(fsys.opens.Load(), ShouldBeLessThan, 10)
		})
	})
}

func TestPath(t *testing.T) {
	Convey("Path is relative to the assets directory", t, func() {
		So(labels.Path(catalog.Woman), ShouldEqual, "outfits_woman/label.json")
	})
}
