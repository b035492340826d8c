package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-parser/constants"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker() (*Tracker, *clock) {
	c := newClock()
	return NewTracker(nil, WithClock(c.Now)), c
}

func TestSessionLifecycle(t *testing.T) {
	tr, c := newTestTracker()
	id := tr.CreateSession("contract.pdf", 4000)

	s, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, constants.StatusInitializing, s.Status)

	for _, st := range []constants.SessionStatus{
		constants.StatusUploading, constants.StatusParsing, constants.StatusChunking,
		constants.StatusLLMProcessing, constants.StatusMerging,
	} {
		tr.UpdateStage(id, st, "")
		s, _ = tr.Get(id)
		assert.Equal(t, st, s.Status)
	}

	c.Advance(3 * time.Second)
	tr.CompleteSession(id)
	s, _ = tr.Get(id)
	assert.Equal(t, constants.StatusCompleted, s.Status)
	assert.Equal(t, int64(3000), s.ProcessingTimeMs)

	c.Advance(time.Second)
	tr.UpdateStage(id, constants.StatusParsing, "late")
	tr.FailSession(id, "late failure")
	s, _ = tr.Get(id)
	assert.Equal(t, constants.StatusCompleted, s.Status, "terminal states ignore transitions")
	assert.Equal(t, int64(3000), s.ProcessingTimeMs)
	assert.Empty(t, s.Error)
	assert.Equal(t, 100, tr.Percentage(id))
}

func TestFailSessionRecordsError(t *testing.T) {
	tr, c := newTestTracker()
	id := tr.CreateSession("a.txt", 10)
	c.Advance(1500 * time.Millisecond)
	tr.UpdateStage(id, constants.StatusFailed, "boom")
	s, _ := tr.Get(id)
	assert.Equal(t, constants.StatusFailed, s.Status)
	assert.Equal(t, int64(1500), s.ProcessingTimeMs)
}

func TestMissingSessionIsNoop(t *testing.T) {
	tr, _ := newTestTracker()
	assert.NotPanics(t, func() {
		tr.UpdateStage("nope", constants.StatusParsing, "")
		tr.StartTask("nope", "t")
		tr.CompleteTask("nope", "t", 10)
		tr.FailChunk("nope", "c", "x")
		tr.CompleteSession("nope")
		tr.Delete("nope")
	})
	assert.Equal(t, 0, tr.Percentage("nope"))
	_, ok := tr.Snapshot("nope")
	assert.False(t, ok)
}

func TestPercentageWithTasks(t *testing.T) {
	tr, _ := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	tr.SetTasks(id, []TaskSpec{{ID: "t1", TotalChunks: 4}, {ID: "t2", TotalChunks: 2}})
	assert.Equal(t, 0, tr.Percentage(id))

	tr.StartTask(id, "t1")
	tr.UpdateTaskChunkProgress(id, "t1", 2, "c2")
	assert.Equal(t, 25, tr.Percentage(id)) // (0 + 2/4) / 2

	tr.UpdateTaskChunkProgress(id, "t1", 1, "c1")
	assert.Equal(t, 25, tr.Percentage(id), "chunk progress never decreases")

	tr.CompleteTask(id, "t1", 100)
	assert.Equal(t, 50, tr.Percentage(id))

	tr.StartTask(id, "t2")
	tr.FailTask(id, "t2", "timeout")
	assert.Equal(t, 100, tr.Percentage(id))
}

func TestPercentageFallsBackToChunks(t *testing.T) {
	tr, _ := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	tr.SetChunks(id, []ChunkSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	tr.StartChunk(id, "a")
	tr.CompleteChunk(id, "a")
	assert.Equal(t, 33, tr.Percentage(id))
	tr.FailChunk(id, "b", "bad")
	assert.Equal(t, 67, tr.Percentage(id))

	s, _ := tr.Get(id)
	assert.Equal(t, constants.ItemFailed, s.Chunks[1].Status)
	assert.Equal(t, "bad", s.Chunks[1].Error)
}

func TestPercentageIsMonotone(t *testing.T) {
	tr, _ := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	tr.SetTasks(id, []TaskSpec{{ID: "t1", TotalChunks: 3}, {ID: "t2", TotalChunks: 1}, {ID: "t3"}})

	last := tr.Percentage(id)
	check := func() {
		p := tr.Percentage(id)
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	tr.StartTask(id, "t1")
	check()
	for i := 1; i <= 3; i++ {
		tr.UpdateTaskChunkProgress(id, "t1", i, "")
		check()
	}
	tr.CompleteTask(id, "t1", 0)
	check()
	tr.StartTask(id, "t2")
	check()
	tr.FailTask(id, "t2", "x")
	check()
	tr.StartTask(id, "t3")
	tr.CompleteTask(id, "t3", 0)
	check()
	tr.CompleteSession(id)
	check()
	assert.Equal(t, 100, last)
}

func TestEstimateRemainingPhases(t *testing.T) {
	tr, c := newTestTracker()

	id := tr.CreateSession("a.pdf", 1000)
	assert.Equal(t, 60, tr.EstimateRemaining(id), "one minute floor")

	tr.SetTextLength(id, 10000)
	assert.Equal(t, 125, tr.EstimateRemaining(id)) // ceil(10000/2000*25)

	tr.SetChunks(id, []ChunkSpec{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}})
	assert.Equal(t, 150, tr.EstimateRemaining(id)) // 5 chunks * 30s

	tr.SetTasks(id, []TaskSpec{
		{ID: "t1", TotalChunks: 2},
		{ID: "t2", TotalChunks: 3},
		{ID: "t3", TotalChunks: 1},
	})
	tr.StartTask(id, "t1")
	c.Advance(10 * time.Second)
	tr.CompleteTask(id, "t1", 0)
	// 5s per chunk * (3 + 1) remaining chunks
	assert.Equal(t, 20, tr.EstimateRemaining(id))

	tr.StartTask(id, "t2")
	c.Advance(20 * time.Second)
	tr.CompleteTask(id, "t2", 0)
	// average 15s * 1 remaining task
	assert.Equal(t, 15, tr.EstimateRemaining(id))

	tr.CompleteSession(id)
	assert.Equal(t, 0, tr.EstimateRemaining(id))
}

func TestSkippedTasksDoNotSkewEstimate(t *testing.T) {
	tr, c := newTestTracker()
	id := tr.CreateSession("a.pdf", 1000)
	tr.SetTasks(id, []TaskSpec{
		{ID: "t1", TotalChunks: 1},
		{ID: "t2", TotalChunks: 1},
		{ID: "t3", TotalChunks: 1},
		{ID: "t4", TotalChunks: 1},
		{ID: "t5", TotalChunks: 1},
	})

	tr.StartTask(id, "t1")
	c.Advance(20 * time.Second)
	tr.CompleteTask(id, "t1", 0)
	assert.Equal(t, 80, tr.EstimateRemaining(id))

	tr.SkipTask(id, "t2")
	assert.Equal(t, 60, tr.EstimateRemaining(id))
	assert.Equal(t, 40, tr.Percentage(id))

	tr.SkipTask(id, "t3")
	assert.Equal(t, 40, tr.EstimateRemaining(id))

	s, _ := tr.Get(id)
	assert.True(t, s.Tasks[1].Skipped)
	assert.Equal(t, constants.ItemCompleted, s.Tasks[1].Status)
	assert.Zero(t, s.Tasks[1].DurationMs)

	// a completion without a start is not timed either
	tr.CompleteTask(id, "t4", 0)
	assert.Equal(t, 20, tr.EstimateRemaining(id))
}

func TestTokenSpeed(t *testing.T) {
	tr, c := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	tr.SetTasks(id, []TaskSpec{{ID: "t1"}, {ID: "t2"}})

	assert.Equal(t, TokenSpeed{}, tr.TokenSpeed(id))

	c.Advance(2 * time.Second)
	tr.StartTask(id, "t1")
	assert.Equal(t, 0.0, tr.TokenSpeed(id).Current, "no tokens yet")

	c.Advance(2 * time.Second)
	tr.AddTokens(id, 100)
	speed := tr.TokenSpeed(id)
	assert.InDelta(t, 50.0, speed.Current, 1e-9)
	assert.InDelta(t, 25.0, speed.Average, 1e-9)

	tr.ResetCurrentTaskTokens(id)
	assert.Equal(t, 0.0, tr.TokenSpeed(id).Current)
	assert.InDelta(t, 25.0, tr.TokenSpeed(id).Average, 1e-9)

	tr.CompleteTask(id, "t1", 60)
	s, _ := tr.Get(id)
	assert.Equal(t, 160, s.TotalTokensUsed)
	assert.Equal(t, 60, s.Tasks[0].TokensUsed)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	tr, _ := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	tr.SetTasks(id, []TaskSpec{{ID: "t1", Name: "basic_info"}})

	snap, ok := tr.Snapshot(id)
	require.True(t, ok)
	snap.Session.Tasks[0].Name = "mutated"
	snap.Session.Tasks = append(snap.Session.Tasks, TaskProgress{ID: "extra"})

	s, _ := tr.Get(id)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, "basic_info", s.Tasks[0].Name)
	assert.Equal(t, 60, snap.RemainingSeconds)
}

func TestSweepPurgesOldSessions(t *testing.T) {
	tr, c := newTestTracker()
	old := tr.CreateSession("old.pdf", 1)
	c.Advance(4 * time.Minute)
	fresh := tr.CreateSession("fresh.pdf", 1)
	c.Advance(90 * time.Second)

	assert.Equal(t, 1, tr.Sweep())
	_, ok := tr.Get(old)
	assert.False(t, ok)
	_, ok = tr.Get(fresh)
	assert.True(t, ok)
	assert.Equal(t, 0, tr.Sweep(), "sweep is idempotent")
	assert.Equal(t, 1, tr.Len())
}

func TestConcurrentTaskCompletionsAreCounted(t *testing.T) {
	tr, _ := newTestTracker()
	id := tr.CreateSession("a.pdf", 100)
	specs := make([]TaskSpec, 50)
	for i := range specs {
		specs[i] = TaskSpec{ID: string(rune('A' + i)), TotalChunks: 1}
	}
	tr.SetTasks(id, specs)

	var wg sync.WaitGroup
	for _, sp := range specs {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			tr.StartTask(id, taskID)
			tr.CompleteTask(id, taskID, 10)
		}(sp.ID)
	}
	wg.Wait()

	s, _ := tr.Get(id)
	assert.Equal(t, 500, s.TotalTokensUsed)
	assert.Equal(t, 100, tr.Percentage(id))
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	tr := NewTracker(nil, WithTTL(time.Millisecond))
	tr.CreateSession("a.pdf", 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
