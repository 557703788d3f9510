// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package job_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/karhu3d/karhu/job"
)

func TestQueueWorkerCount(t *testing.T) {
	q := job.NewQueue(3)
	defer q.Shutdown()
	if q.Workers() != 3 {
		t.Errorf("Workers() = %d, want 3", q.Workers())
	}

	d := job.NewQueue(0)
	defer d.Shutdown()
	if d.Workers() != job.DefaultWorkers() {
		t.Errorf("Workers() = %d, want %d", d.Workers(), job.DefaultWorkers())
	}
}

func TestSubmitAndWait(t *testing.T) {
	q := job.NewQueue(2)
	defer q.Shutdown()

	h := q.Submit(func() (interface{}, error) {
		return 41 + 1, nil
	})

	res, err := h.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if res.(int) != 42 {
		t.Errorf("result = %v, want 42", res)
	}
}

func TestTryResult(t *testing.T) {
	q := job.NewQueue(1)
	defer q.Shutdown()

	release := make(chan struct{})
	h := q.Submit(func() (interface{}, error) {
		<-release
		return "done", nil
	})

	if _, ok, _ := h.TryResult(); ok {
		t.Fatal("TryResult reported completion for a blocked job")
	}
	close(release)
	if _, err := h.Wait(); err != nil {
		t.Fatal(err)
	}
	res, ok, err := h.TryResult()
	if !ok || err != nil || res.(string) != "done" {
		t.Errorf("TryResult = (%v, %v, %v), want (done, true, nil)", res, ok, err)
	}
}

func TestShutdownDrainsEverything(t *testing.T) {
	q := job.NewQueue(4)

	var counter atomic.Int64
	for i := 0; i < 1000; i++ {
		q.Submit(func() (interface{}, error) {
			counter.Add(1)
			return nil, nil
		})
	}
	q.Shutdown()

	if counter.Load() != 1000 {
		t.Errorf("observed %d side effects after shutdown, want 1000", counter.Load())
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	q := job.NewQueue(1)
	q.Shutdown()

	h := q.Submit(func() (interface{}, error) { return nil, nil })
	_, err := h.Wait()
	if !errors.Is(err, job.ErrShutdown) {
		t.Errorf("err = %v, want ErrShutdown", err)
	}
}

func TestWaitAll(t *testing.T) {
	q := job.NewQueue(2)
	defer q.Shutdown()

	var counter atomic.Int64
	for i := 0; i < 50; i++ {
		q.Submit(func() (interface{}, error) {
			time.Sleep(time.Millisecond)
			counter.Add(1)
			return nil, nil
		})
	}
	q.WaitAll()
	if counter.Load() != 50 {
		t.Errorf("WaitAll returned with %d of 50 jobs complete", counter.Load())
	}
}

func TestErrorsRideTheHandle(t *testing.T) {
	q := job.NewQueue(1)
	defer q.Shutdown()

	boom := errors.New("decode failed")
	h := q.Submit(func() (interface{}, error) { return nil, boom })
	if _, err := h.Wait(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestPanicIsContained(t *testing.T) {
	q := job.NewQueue(1)
	defer q.Shutdown()

	h := q.Submit(func() (interface{}, error) { panic("bad asset") })
	if _, err := h.Wait(); err == nil {
		t.Error("expected an error from a panicking job")
	}

	// The worker must survive the panic.
	ok := q.Submit(func() (interface{}, error) { return true, nil })
	if res, err := ok.Wait(); err != nil || res.(bool) != true {
		t.Errorf("worker did not survive panic: (%v, %v)", res, err)
	}
}

func TestSubmitRacingShutdown(t *testing.T) {
	// Submissions racing a shutdown must either run or complete with
	// ErrShutdown; none may be dropped, and Shutdown must not hang.
	for round := 0; round < 25; round++ {
		q := job.NewQueue(4)

		const submitters = 4
		const perSubmitter = 50
		handles := make(chan *job.Handle, submitters*perSubmitter)
		var executed atomic.Int64
		var wg sync.WaitGroup

		start := make(chan struct{})
		for g := 0; g < submitters; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < perSubmitter; i++ {
					handles <- q.Submit(func() (interface{}, error) {
						executed.Add(1)
						return nil, nil
					})
				}
			}()
		}

		close(start)
		q.Shutdown()
		wg.Wait()
		close(handles)

		var rejected int64
		for h := range handles {
			select {
			case <-h.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("a handle never settled after shutdown")
			}
			if _, err := h.Wait(); errors.Is(err, job.ErrShutdown) {
				rejected++
			} else if err != nil {
				t.Fatalf("unexpected job error: %v", err)
			}
		}
		if got := executed.Load() + rejected; got != submitters*perSubmitter {
			t.Fatalf("round %d: %d executed + %d rejected = %d, want %d",
				round, executed.Load(), rejected, got, submitters*perSubmitter)
		}
	}
}

func TestLateJobsDoNotStarve(t *testing.T) {
	q := job.NewQueue(2)
	defer q.Shutdown()

	// One long job must not block the short one submitted after it.
	slow := q.Submit(func() (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	fast := q.Submit(func() (interface{}, error) { return nil, nil })

	select {
	case <-fast.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("short job starved behind a long one")
	}
	_, _ = slow.Wait()
}
