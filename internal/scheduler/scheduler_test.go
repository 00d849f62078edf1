package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) ObserveJobRun(job string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestScheduler_RunNow(t *testing.T) {
	observer := &recordingObserver{}
	s := New(testLogger(), observer)

	ok := &countingJob{}
	require.NoError(t, s.RunNow(ok))

	failing := &countingJob{err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")

	assert.Equal(t, int32(1), ok.runs.Load())
	assert.Equal(t, int32(1), failing.runs.Load())
	require.Len(t, observer.runs["counting"], 2)
	assert.Nil(t, observer.runs["counting"][0])
	assert.Error(t, observer.runs["counting"][1])
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testLogger(), nil)

	for _, schedule := range []string{"@daily", "30 2 * * *", "0 */15 * * * *", "@every 6h"} {
		require.NoError(t, s.AddJob(schedule, &countingJob{}), schedule)
	}
	assert.Equal(t, 4, s.Entries())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
	assert.Equal(t, 4, s.Entries())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(testLogger(), nil)
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@daily"))
	assert.NoError(t, ValidateSchedule("0 3 * * MON-FRI"))
	assert.Error(t, ValidateSchedule("61 * * * *"))
	assert.Error(t, ValidateSchedule(""))
}
