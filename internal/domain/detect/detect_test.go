package detect_test

import (
	"sync"
	"testing"

	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/internal/domain/detect"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Normalize folds case, width and strips the extension", t, func() {
		So(detect.Normalize("LOOK1-First.JPG"), ShouldEqual, "look1-first")
		So(detect.Normalize("ｌｏｏｋ２-first.png"), ShouldEqual, "look2-first")
		So(detect.Normalize(`C:\fakepath\Woman.png`), ShouldEqual, "woman")
		So(detect.Normalize("/tmp/dir/a.b.c"), ShouldEqual, "a.b")
		So(detect.Normalize("  "), ShouldEqual, "")
	})
}

func TestNormalizeConcurrent(t *testing.T) {
	Convey("Normalize gives the same answer from many goroutines", t, func() {
		var wg sync.WaitGroup
		results := make([]string, 64)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = detect.Normalize("WOMAN_Street.PNG")
			}(i)
		}
		wg.Wait()
		for _, got := range results {
			So(got, ShouldEqual, "woman_street")
		}
	})
}

func TestClassify(t *testing.T) {
	Convey("Given file names carrying a look id", t, func() {
		Convey("An exact id selects that look", func() {
			r := detect.Classify("look2-first.png")
			So(r.Matched, ShouldBeTrue)
			So(r.Reason, ShouldEqual, detect.ReasonLook)
			So(r.Look, ShouldEqual, "look2-first")
			So(r.Gender, ShouldEqual, catalog.Woman)
		})

		Convey("An unknown suffix falls back to the look number", func() {
			r := detect.Classify("IMG_look1-final.jpeg")
			So(r.Look, ShouldEqual, "look1-first")
			So(r.Gender, ShouldEqual, catalog.Man)
		})

		Convey("A look id wins over a gender keyword", func() {
			r := detect.Classify("man-look2-first.jpg")
			So(r.Gender, ShouldEqual, catalog.Woman)
		})

		Convey("An unknown look number falls through to keywords", func() {
			r := detect.Classify("look7-first_male.jpg")
			So(r.Reason, ShouldEqual, detect.ReasonGender)
			So(r.Gender, ShouldEqual, catalog.Man)
		})
	})

	Convey("Given file names carrying gender keywords", t, func() {
		r := detect.Classify("Woman_street.jpg")
		So(r.Gender, ShouldEqual, catalog.Woman)
		So(r.Look, ShouldEqual, "look2-first")
		So(r.Reason, ShouldEqual, detect.ReasonGender)

		So(detect.Classify("photo_women.png").Gender, ShouldEqual, catalog.Woman)
		So(detect.Classify("男士照片.jpg").Gender, ShouldEqual, catalog.Man)
		So(detect.Classify("女生.webp").Gender, ShouldEqual, catalog.Woman)
		So(detect.Classify("BOY.gif").Look, ShouldEqual, "look1-first")
	})

	Convey("Given file names with nothing recognisable", t, func() {
		r := detect.Classify("IMG_0001.jpg")
		So(r.Matched, ShouldBeFalse)
		So(r.Reason, ShouldEqual, detect.ReasonNoMatch)
		So(r.Gender, ShouldEqual, catalog.Gender(""))
		So(r.Look, ShouldBeEmpty)

		So(detect.Classify("").Matched, ShouldBeFalse)
	})
}
