// Package progress keeps per-session parse progress for pollers.
package progress

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-parser/constants"
)

// DefaultTTL is how long a session lives after it started before a sweep purges it.
const DefaultTTL = 5 * time.Minute

// Estimator constants, phase 0.
const (
	secondsPer2000Chars = 25
	secondsPerChunk     = 30
	minEstimateSeconds  = 60
)

type ChunkProgress struct {
	ID          string               `json:"id"`
	Type        string               `json:"type,omitempty"`
	Status      constants.ItemStatus `json:"status"`
	StartedAt   time.Time            `json:"startedAt,omitempty"`
	CompletedAt time.Time            `json:"completedAt,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type TaskProgress struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Status              constants.ItemStatus `json:"status"`
	StartedAt           time.Time            `json:"startedAt,omitempty"`
	CompletedAt         time.Time            `json:"completedAt,omitempty"`
	DurationMs          int64                `json:"durationMs"`
	Skipped             bool                 `json:"skipped,omitempty"`
	TokensUsed          int                  `json:"tokensUsed"`
	Error               string               `json:"error,omitempty"`
	TotalTaskChunks     int                  `json:"totalTaskChunks"`
	CompletedTaskChunks int                  `json:"completedTaskChunks"`
	CurrentTaskChunk    string               `json:"currentTaskChunk,omitempty"`
}

func (t TaskProgress) finished() bool {
	return t.Status == constants.ItemCompleted || t.Status == constants.ItemFailed
}

// chunkCount is the number of chunks a task covers, at least one.
func (t TaskProgress) chunkCount() int {
	if t.TotalTaskChunks < 1 {
		return 1
	}
	return t.TotalTaskChunks
}

// Session is a snapshot of one parse session.
type Session struct {
	ID                   string                  `json:"id"`
	FileName             string                  `json:"fileName"`
	Status               constants.SessionStatus `json:"status"`
	Message              string                  `json:"message,omitempty"`
	Error                string                  `json:"error,omitempty"`
	TextLength           int                     `json:"textLength"`
	StartTime            time.Time               `json:"startTime"`
	UpdatedAt            time.Time               `json:"updatedAt"`
	ProcessingTimeMs     int64                   `json:"processingTimeMs"`
	Chunks               []ChunkProgress         `json:"chunks"`
	Tasks                []TaskProgress          `json:"tasks"`
	TotalTokensUsed      int                     `json:"totalTokensUsed"`
	CurrentTaskTokens    int                     `json:"currentTaskTokens"`
	CurrentTaskStartTime time.Time               `json:"currentTaskStartTime,omitempty"`
}

func (s *Session) clone() Session {
	out := *s
	out.Chunks = append([]ChunkProgress(nil), s.Chunks...)
	out.Tasks = append([]TaskProgress(nil), s.Tasks...)
	return out
}

func (s *Session) chunk(id string) *ChunkProgress {
	for i := range s.Chunks {
		if s.Chunks[i].ID == id {
			return &s.Chunks[i]
		}
	}
	return nil
}

func (s *Session) task(id string) *TaskProgress {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

// ChunkSpec and TaskSpec declare the work of a session up front.
type ChunkSpec struct {
	ID   string
	Type string
}

type TaskSpec struct {
	ID          string
	Name        string
	TotalChunks int
}

// TokenSpeed is throughput in tokens per second.
type TokenSpeed struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
}

// Snapshot is what a progress poller receives.
type Snapshot struct {
	Session          Session    `json:"session"`
	Percentage       int        `json:"percentage"`
	RemainingSeconds int        `json:"remainingSeconds"`
	TokenSpeed       TokenSpeed `json:"tokenSpeed"`
}

type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTTL sets the age after which a sweep purges a session.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// Tracker owns every session. All methods are safe for concurrent use; operations on a
// missing session are no-ops, and terminal sessions ignore further transitions.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	ttl      time.Duration
	logger   *slog.Logger
}

func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		sessions: make(map[string]*Session),
		now:      time.Now,
		ttl:      DefaultTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateSession starts a session in the initializing state and returns its id.
func (t *Tracker) CreateSession(fileName string, textLength int) string {
	id := uuid.NewString()
	now := t.now()
	t.mu.Lock()
	t.sessions[id] = &Session{
		ID:         id,
		FileName:   fileName,
		Status:     constants.StatusInitializing,
		TextLength: textLength,
		StartTime:  now,
		UpdatedAt:  now,
	}
	t.mu.Unlock()
	t.logger.Debug("progress.session.created", "session_id", id, "file", fileName)
	return id
}

func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (t *Tracker) Delete(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

// Len reports the number of live sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// mutate runs fn on a live, non-terminal session under the lock.
func (t *Tracker) mutate(id string, fn func(s *Session, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok || s.Status.IsTerminal() {
		return
	}
	now := t.now()
	fn(s, now)
	s.UpdatedAt = now
}

func finish(s *Session, status constants.SessionStatus, now time.Time) {
	s.Status = status
	s.ProcessingTimeMs = now.Sub(s.StartTime).Milliseconds()
}

// UpdateStage moves the session to status. Moving to a terminal status behaves like
// CompleteSession or FailSession.
func (t *Tracker) UpdateStage(id string, status constants.SessionStatus, message string) {
	t.mutate(id, func(s *Session, now time.Time) {
		s.Message = message
		if status.IsTerminal() {
			finish(s, status, now)
			return
		}
		s.Status = status
	})
}

func (t *Tracker) SetTextLength(id string, n int) {
	t.mutate(id, func(s *Session, _ time.Time) { s.TextLength = n })
}

// SetChunks replaces the chunk list with pending entries.
func (t *Tracker) SetChunks(id string, chunks []ChunkSpec) {
	t.mutate(id, func(s *Session, _ time.Time) {
		s.Chunks = make([]ChunkProgress, len(chunks))
		for i, c := range chunks {
			s.Chunks[i] = ChunkProgress{ID: c.ID, Type: c.Type, Status: constants.ItemPending}
		}
	})
}

func (t *Tracker) StartChunk(id, chunkID string) {
	t.mutate(id, func(s *Session, now time.Time) {
		if c := s.chunk(chunkID); c != nil && c.Status == constants.ItemPending {
			c.Status = constants.ItemProcessing
			c.StartedAt = now
		}
	})
}

func (t *Tracker) CompleteChunk(id, chunkID string) {
	t.mutate(id, func(s *Session, now time.Time) {
		if c := s.chunk(chunkID); c != nil && c.Status != constants.ItemFailed {
			c.Status = constants.ItemCompleted
			c.CompletedAt = now
		}
	})
}

func (t *Tracker) FailChunk(id, chunkID, errMsg string) {
	t.mutate(id, func(s *Session, now time.Time) {
		if c := s.chunk(chunkID); c != nil && c.Status != constants.ItemCompleted {
			c.Status = constants.ItemFailed
			c.CompletedAt = now
			c.Error = errMsg
		}
	})
}

// SetTasks replaces the task list with pending entries.
func (t *Tracker) SetTasks(id string, tasks []TaskSpec) {
	t.mutate(id, func(s *Session, _ time.Time) {
		s.Tasks = make([]TaskProgress, len(tasks))
		for i, ts := range tasks {
			s.Tasks[i] = TaskProgress{ID: ts.ID, Name: ts.Name, Status: constants.ItemPending, TotalTaskChunks: ts.TotalChunks}
		}
	})
}

// StartTask marks a task as processing and resets the current-task token counter.
func (t *Tracker) StartTask(id, taskID string) {
	t.mutate(id, func(s *Session, now time.Time) {
		tp := s.task(taskID)
		if tp == nil || tp.Status != constants.ItemPending {
			return
		}
		tp.Status = constants.ItemProcessing
		tp.StartedAt = now
		s.CurrentTaskStartTime = now
		s.CurrentTaskTokens = 0
	})
}

// UpdateTaskChunkProgress records inner chunk progress of a running task. Counts never
// go backwards and are capped at the task's chunk total.
func (t *Tracker) UpdateTaskChunkProgress(id, taskID string, completed int, current string) {
	t.mutate(id, func(s *Session, _ time.Time) {
		tp := s.task(taskID)
		if tp == nil || tp.finished() {
			return
		}
		if completed > tp.TotalTaskChunks {
			completed = tp.TotalTaskChunks
		}
		if completed > tp.CompletedTaskChunks {
			tp.CompletedTaskChunks = completed
		}
		tp.CurrentTaskChunk = current
	})
}

// CompleteTask finishes a task and adds tokens to the session totals.
func (t *Tracker) CompleteTask(id, taskID string, tokens int) {
	t.mutate(id, func(s *Session, now time.Time) {
		tp := s.task(taskID)
		if tp == nil || tp.finished() {
			return
		}
		tp.Status = constants.ItemCompleted
		tp.CompletedAt = now
		if !tp.StartedAt.IsZero() {
			tp.DurationMs = now.Sub(tp.StartedAt).Milliseconds()
		}
		tp.CompletedTaskChunks = tp.TotalTaskChunks
		tp.CurrentTaskChunk = ""
		tp.TokensUsed += tokens
		s.TotalTokensUsed += tokens
		s.CurrentTaskTokens += tokens
	})
}

// SkipTask finishes a task that never ran. It counts towards the percentage but not
// towards the task durations behind EstimateRemaining.
func (t *Tracker) SkipTask(id, taskID string) {
	t.mutate(id, func(s *Session, now time.Time) {
		tp := s.task(taskID)
		if tp == nil || tp.finished() {
			return
		}
		tp.Status = constants.ItemCompleted
		tp.Skipped = true
		tp.CompletedAt = now
		tp.CompletedTaskChunks = tp.TotalTaskChunks
		tp.CurrentTaskChunk = ""
	})
}

func (t *Tracker) FailTask(id, taskID, errMsg string) {
	t.mutate(id, func(s *Session, now time.Time) {
		tp := s.task(taskID)
		if tp == nil || tp.finished() {
			return
		}
		tp.Status = constants.ItemFailed
		tp.CompletedAt = now
		if !tp.StartedAt.IsZero() {
			tp.DurationMs = now.Sub(tp.StartedAt).Milliseconds()
		}
		tp.CurrentTaskChunk = ""
		tp.Error = errMsg
	})
}

// AddTokens counts streamed tokens against the session and the current task.
func (t *Tracker) AddTokens(id string, n int) {
	t.mutate(id, func(s *Session, _ time.Time) {
		s.TotalTokensUsed += n
		s.CurrentTaskTokens += n
	})
}

func (t *Tracker) ResetCurrentTaskTokens(id string) {
	t.mutate(id, func(s *Session, now time.Time) {
		s.CurrentTaskTokens = 0
		s.CurrentTaskStartTime = now
	})
}

func (t *Tracker) CompleteSession(id string) {
	t.mutate(id, func(s *Session, now time.Time) {
		finish(s, constants.StatusCompleted, now)
	})
	t.logger.Debug("progress.session.completed", "session_id", id)
}

func (t *Tracker) FailSession(id, errMsg string) {
	t.mutate(id, func(s *Session, now time.Time) {
		s.Error = errMsg
		finish(s, constants.StatusFailed, now)
	})
	t.logger.Debug("progress.session.failed", "session_id", id, "error", errMsg)
}

// Percentage reports overall progress from 0 to 100.
func (t *Tracker) Percentage(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return 0
	}
	return percentage(s)
}

// percentage counts failed items as done so the value never goes backwards. Every running
// task adds its inner chunk fraction.
func percentage(s *Session) int {
	if s.Status == constants.StatusCompleted {
		return 100
	}
	var p float64
	switch {
	case len(s.Tasks) > 0:
		done := 0.0
		for _, tp := range s.Tasks {
			switch {
			case tp.finished():
				done++
			case tp.Status == constants.ItemProcessing && tp.TotalTaskChunks > 0:
				done += float64(tp.CompletedTaskChunks) / float64(tp.TotalTaskChunks)
			}
		}
		p = 100 * done / float64(len(s.Tasks))
	case len(s.Chunks) > 0:
		done := 0
		for _, c := range s.Chunks {
			if c.Status == constants.ItemCompleted || c.Status == constants.ItemFailed {
				done++
			}
		}
		p = 100 * float64(done) / float64(len(s.Chunks))
	}
	return int(math.Min(100, math.Round(p)))
}

// EstimateRemaining predicts the seconds left. Before any task completes it uses the text
// size and chunk count, after one it projects that task's per-chunk time, and after that
// the average task time.
func (t *Tracker) EstimateRemaining(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return 0
	}
	return estimateRemaining(s)
}

func estimateRemaining(s *Session) int {
	if s.Status.IsTerminal() {
		return 0
	}
	var completed []TaskProgress
	remainingTasks, remainingChunks := 0, 0
	for _, tp := range s.Tasks {
		switch {
		case tp.Skipped:
		case tp.Status == constants.ItemCompleted && !tp.StartedAt.IsZero():
			completed = append(completed, tp)
		case !tp.finished():
			remainingTasks++
			remainingChunks += tp.chunkCount()
		}
	}

	switch len(completed) {
	case 0:
		byText := int(math.Ceil(float64(s.TextLength) / 2000 * secondsPer2000Chars))
		return max(byText, len(s.Chunks)*secondsPerChunk, minEstimateSeconds)
	case 1:
		perChunkMs := float64(completed[0].DurationMs) / float64(completed[0].chunkCount())
		return int(math.Ceil(perChunkMs * float64(remainingChunks) / 1000))
	default:
		var total int64
		for _, tp := range completed {
			total += tp.DurationMs
		}
		avgMs := float64(total) / float64(len(completed))
		return int(math.Ceil(avgMs * float64(remainingTasks) / 1000))
	}
}

// TokenSpeed reports current-task and session-wide throughput.
func (t *Tracker) TokenSpeed(id string) TokenSpeed {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return TokenSpeed{}
	}
	return tokenSpeed(s, t.now())
}

func tokenSpeed(s *Session, now time.Time) TokenSpeed {
	var ts TokenSpeed
	if !s.CurrentTaskStartTime.IsZero() && s.CurrentTaskTokens > 0 {
		if ms := now.Sub(s.CurrentTaskStartTime).Milliseconds(); ms > 0 {
			ts.Current = float64(s.CurrentTaskTokens) / float64(ms) * 1000
		}
	}
	if s.TotalTokensUsed > 0 {
		if ms := now.Sub(s.StartTime).Milliseconds(); ms > 0 {
			ts.Average = float64(s.TotalTokensUsed) / float64(ms) * 1000
		}
	}
	return ts
}

// Snapshot returns the session together with its derived progress values.
func (t *Tracker) Snapshot(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Session:          s.clone(),
		Percentage:       percentage(s),
		RemainingSeconds: estimateRemaining(s),
		TokenSpeed:       tokenSpeed(s, t.now()),
	}, true
}

// Sweep purges sessions that started more than the TTL ago and returns how many it removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	cutoff := t.now().Add(-t.ttl)
	n := 0
	for id, s := range t.sessions {
		if s.StartTime.Before(cutoff) {
			delete(t.sessions, id)
			n++
		}
	}
	t.mu.Unlock()
	if n > 0 {
		t.logger.Info("progress.sweep", "purged", n)
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (t *Tracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
