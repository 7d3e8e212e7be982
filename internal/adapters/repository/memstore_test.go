package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/unitry/internal/adapters/repository"
	"github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/internal/domain/tryon"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory job store", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore(ctx, repository.WithClock(func() time.Time { return now }))
		defer func() { _ = store.Close() }()

		job := model.Job{ID: "job-1", Status: model.JobPending, CreatedAt: now, UpdatedAt: now}

		Convey("When a job is created", func() {
			So(store.Create(ctx, job), ShouldBeNil)

			Convey("Then it can be read back", func() {
				got, err := store.Get(ctx, "job-1")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.JobPending)
				So(store.Count(ctx), ShouldEqual, 1)
			})

			Convey("Then creating it again fails", func() {
				So(store.Create(ctx, job), ShouldEqual, repository.ErrDuplicate)
			})

			Convey("Then it can be updated", func() {
				got, err := store.Update(ctx, "job-1", func(j *model.Job) {
					j.Succeed(tryon.Result{RequestID: "r1"}, now.Add(time.Second))
				})
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.JobSucceeded)

				stored, _ := store.Get(ctx, "job-1")
				So(stored.Result.RequestID, ShouldEqual, "r1")
			})

			Convey("Then it can be deleted", func() {
				store.Delete(ctx, "job-1")
				_, err := store.Get(ctx, "job-1")
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})

		Convey("When reading or updating an unknown job", func() {
			_, err := store.Get(ctx, "missing")
			So(err, ShouldEqual, repository.ErrNotFound)

			_, err = store.Update(ctx, "missing", func(*model.Job) {})
			So(err, ShouldEqual, repository.ErrNotFound)
		})

		Convey("When sweeping", func() {
			old := now.Add(-time.Hour)
			So(store.Create(ctx, model.Job{ID: "old-done", Status: model.JobSucceeded, UpdatedAt: old}), ShouldBeNil)
			So(store.Create(ctx, model.Job{ID: "old-failed", Status: model.JobFailed, UpdatedAt: old}), ShouldBeNil)
			So(store.Create(ctx, model.Job{ID: "old-running", Status: model.JobRunning, UpdatedAt: old}), ShouldBeNil)
			So(store.Create(ctx, model.Job{ID: "fresh-done", Status: model.JobSucceeded, UpdatedAt: now}), ShouldBeNil)

			removed := store.Sweep(ctx, now.Add(-30*time.Minute))

			Convey("Then only finished jobs past the cutoff are removed", func() {
				So(removed, ShouldEqual, 2)
				So(store.Count(ctx), ShouldEqual, 2)
				_, err := store.Get(ctx, "old-running")
				So(err, ShouldBeNil)
			})
		})

		Convey("When used concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("job-%d", i)
					_ = store.Create(ctx, model.Job{ID: id, Status: model.JobPending})
					_, _ = store.Update(ctx, id, func(j *model.Job) { j.Status = model.JobRunning })
					_, _ = store.Get(ctx, id)
				}(i)
			}
			wg.Wait()

			So(store.Count(ctx), ShouldEqual, 20)
		})
	})
}

func TestMemoryStoreBackgroundSweep(t *testing.T) {
	Convey("Given a store with a short sweep interval", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx,
			repository.WithRetention(time.Millisecond),
			repository.WithSweepInterval(10*time.Millisecond),
		)
		defer func() { _ = store.Close() }()

		past := time.Now().Add(-time.Second)
		So(store.Create(ctx, model.Job{ID: "done", Status: model.JobFailed, UpdatedAt: past}), ShouldBeNil)

		Convey("Then finished jobs disappear on their own", func() {
			deadline := time.Now().Add(2 * time.Second)
			for store.Count(ctx) > 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(store.Count(ctx), ShouldEqual, 0)
		})

		Convey("Then Close is idempotent", func() {
			So(store.Close(), ShouldBeNil)
			So(store.Close(), ShouldBeNil)
		})
	})
}
