package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/smartystreets/goconvey/convey"
)

func TestJob(t *testing.T) {
	convey.Convey("Given a pending job", t, func() {
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		job := model.Job{ID: "job-1", Status: model.JobPending, CreatedAt: created, UpdatedAt: created}

		convey.So(job.Status.Finished(), convey.ShouldBeFalse)
		convey.So(model.JobRunning.Finished(), convey.ShouldBeFalse)

		convey.Convey("When it succeeds", func() {
			done := created.Add(3 * time.Second)
			job.Succeed(tryon.Result{RequestID: "r1", ImageURL: "https://cdn.example/out.png"}, done)

			convey.So(job.Status, convey.ShouldEqual, model.JobSucceeded)
			convey.So(job.Status.Finished(), convey.ShouldBeTrue)
			convey.So(job.Result.RequestID, convey.ShouldEqual, "r1")
			convey.So(job.UpdatedAt, convey.ShouldEqual, done)
		})

		convey.Convey("When it fails", func() {
			job.Fail(errors.New("diffusion service error"), created.Add(time.Second))

			convey.So(job.Status, convey.ShouldEqual, model.JobFailed)
			convey.So(job.Error, convey.ShouldEqual, "diffusion service error")
			convey.So(job.Result, convey.ShouldBeNil)
		})
	})
}
