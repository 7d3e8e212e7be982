package tryon_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/smartystreets/goconvey/convey"
)

func validPayload() tryon.Payload {
	return tryon.Payload{
		ModelImageURL:   "https://cdn.example/model.jpg",
		GarmentImageURL: "https://cdn.example/garment.jpg",
		Prompt:          "a person wearing the garment",
	}
}

func TestPayloadValidate(t *testing.T) {
	convey.Convey("Given a valid payload without scheduler", t, func() {
		p, err := validPayload().Validate()

		convey.So(err, convey.ShouldBeNil)
		convey.So(p.Scheduler, convey.ShouldEqual, tryon.DefaultScheduler)
	})

	convey.Convey("Given an upper-case scheduler", t, func() {
		in := validPayload()
		in.Scheduler = " HEUN "
		p, err := in.Validate()

		convey.So(err, convey.ShouldBeNil)
		convey.So(p.Scheduler, convey.ShouldEqual, tryon.SchedulerHeun)
	})

	convey.Convey("Given an empty payload", t, func() {
		_, err := tryon.Payload{}.Validate()

		convey.So(errors.Is(err, tryon.ErrInvalidPayload), convey.ShouldBeTrue)
		var verr *tryon.ValidationError
		convey.So(errors.As(err, &verr), convey.ShouldBeTrue)

		fields := map[string]string{}
		for _, f := range verr.Fields {
			fields[f.Field] = f.Message
		}
		convey.So(fields["model_image_url"], convey.ShouldEqual, "field required")
		convey.So(fields["garment_image_url"], convey.ShouldEqual, "field required")
		convey.So(fields["prompt"], convey.ShouldEqual, "field required")
		convey.So(fields, convey.ShouldNotContainKey, "scheduler")
	})

	convey.Convey("Given bad field values", t, func() {
		in := validPayload()
		in.ModelImageURL = "ftp://cdn.example/model.jpg"
		in.Scheduler = "euler"
		in.Prompt = strings.Repeat("x", tryon.MaxPromptLength+1)

		_, err := in.Validate()

		var verr *tryon.ValidationError
		convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
		convey.So(len(verr.Fields), convey.ShouldEqual, 3)
		convey.So(err.Error(), convey.ShouldContainSubstring, "model_image_url: must be an http(s) URL")
		convey.So(err.Error(), convey.ShouldContainSubstring, "scheduler: must be one of ddim, dpmpp, heun")
		convey.So(err.Error(), convey.ShouldContainSubstring, "prompt: must be at most 2000 characters")
	})
}

func TestPayloadValidateURLScheme(t *testing.T) {
	convey.Convey("Given image URLs with look-alike schemes", t, func() {
		for _, u := range []string{"httpx://cdn.example/a.jpg", "http-foo:opaque", "file:///etc/passwd", "/tmp/a.jpg"} {
			in := validPayload()
			in.GarmentImageURL = u

			_, err := in.Validate()

			var verr *tryon.ValidationError
			convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
			convey.So(verr.Fields, convey.ShouldResemble, []tryon.FieldError{
				{Field: "garment_image_url", Message: "must be an http(s) URL"},
			})
		}
	})

	convey.Convey("Given plain http and https URLs", t, func() {
		in := validPayload()
		in.ModelImageURL = "http://cdn.example/model.jpg"
		in.GarmentImageURL = "https://cdn.example:8443/garment.png?v=2"

		_, err := in.Validate()

		convey.So(err, convey.ShouldBeNil)
	})
}

func TestGeneratorFunc(t *testing.T) {
	convey.Convey("GeneratorFunc forwards to the wrapped function", t, func() {
		var got tryon.Payload
		g := tryon.GeneratorFunc(func(_ context.Context, p tryon.Payload) (tryon.Result, error) {
			got = p
			return tryon.Result{RequestID: "r1"}, nil
		})

		res, err := g.Generate(context.Background(), validPayload())

		convey.So(err, convey.ShouldBeNil)
		convey.So(res.RequestID, convey.ShouldEqual, "r1")
		convey.So(got.Prompt, convey.ShouldEqual, validPayload().Prompt)
	})
}
