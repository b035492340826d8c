package pipeline

import (
	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/concurrent"
	"github.com/joseph-ayodele/contracts-parser/internal/progress"
)

var stageMessages = map[constants.SessionStatus]string{
	constants.StatusChunking:      "splitting the contract into sections",
	constants.StatusLLMProcessing: "extracting fields",
	constants.StatusMerging:       "merging extracted fields",
}

// trackerObserver reports orchestrator events into one tracker session. Each model task
// covers a single chunk, so task and chunk progress move together.
type trackerObserver struct {
	tracker   *progress.Tracker
	sessionID string
}

func newTrackerObserver(t *progress.Tracker, sessionID string) *trackerObserver {
	return &trackerObserver{tracker: t, sessionID: sessionID}
}

func (o *trackerObserver) StageChanged(stage constants.SessionStatus) {
	o.tracker.UpdateStage(o.sessionID, stage, stageMessages[stage])
}

func (o *trackerObserver) ChunksReady(chunks []chunking.SemanticChunk) {
	specs := make([]progress.ChunkSpec, len(chunks))
	for i, c := range chunks {
		specs[i] = progress.ChunkSpec{ID: c.ID, Type: string(c.Metadata.Type)}
	}
	o.tracker.SetChunks(o.sessionID, specs)
}

func (o *trackerObserver) TasksPlanned(tasks []concurrent.Task) {
	specs := make([]progress.TaskSpec, len(tasks))
	for i, t := range tasks {
		name := t.Title
		if name == "" {
			name = t.ChunkID
		}
		specs[i] = progress.TaskSpec{ID: t.ChunkID, Name: name, TotalChunks: 1}
	}
	o.tracker.SetTasks(o.sessionID, specs)
}

func (o *trackerObserver) ChunkStarted(chunkID string) {
	o.tracker.StartChunk(o.sessionID, chunkID)
}

func (o *trackerObserver) ChunkFinished(chunkID string, err error) {
	if err != nil {
		o.tracker.FailChunk(o.sessionID, chunkID, err.Error())
		return
	}
	o.tracker.CompleteChunk(o.sessionID, chunkID)
}

func (o *trackerObserver) TaskStarted(t concurrent.Task) {
	o.tracker.StartTask(o.sessionID, t.ChunkID)
	o.tracker.StartChunk(o.sessionID, t.ChunkID)
	o.tracker.UpdateTaskChunkProgress(o.sessionID, t.ChunkID, 0, t.ChunkID)
}

func (o *trackerObserver) TaskFinished(r concurrent.TaskResult) {
	if r.Skipped {
		o.tracker.SkipTask(o.sessionID, r.ChunkID)
		o.tracker.CompleteChunk(o.sessionID, r.ChunkID)
		return
	}
	if r.Success {
		o.tracker.CompleteTask(o.sessionID, r.ChunkID, r.TokensUsed)
		o.tracker.CompleteChunk(o.sessionID, r.ChunkID)
		return
	}
	o.tracker.FailTask(o.sessionID, r.ChunkID, r.Error)
	o.tracker.FailChunk(o.sessionID, r.ChunkID, r.Error)
}
