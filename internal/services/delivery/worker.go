// -----------------------------------------------------------------------
// Task Worker - Produces the actual deliverable for an accepted job
// -----------------------------------------------------------------------

package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

// taskType drives the prompt the worker uses for a job.
type taskType string

const (
	taskTranslation   taskType = "translation"
	taskWriting       taskType = "writing"
	taskDataEntry     taskType = "data_entry"
	taskResearch      taskType = "research"
	taskTranscription taskType = "transcription"
	taskProofreading  taskType = "proofreading"
	taskGeneral       taskType = "general"
)

var taskKeywords = []struct {
	kind     taskType
	keywords []string
}{
	{taskTranslation, []string{"翻訳", "translation", "英訳", "和訳", "translate"}},
	{taskWriting, []string{"ライティング", "writing", "記事", "article", "blog", "コンテンツ"}},
	{taskDataEntry, []string{"データ入力", "data entry", "入力作業", "typing", "エクセル"}},
	{taskResearch, []string{"リサーチ", "research", "調査", "情報収集"}},
	{taskTranscription, []string{"文字起こし", "transcription", "音声", "テープ起こし"}},
	{taskProofreading, []string{"校正", "proofreading", "添削", "editing"}},
}

var taskPrompts = map[taskType]string{
	taskTranslation:   "Translate the task material accurately, preserving tone and formatting.",
	taskWriting:       "Write the requested content. Match the requested length, style and language.",
	taskDataEntry:     "Produce the structured data output the task asks for, row by row.",
	taskResearch:      "Research the topic and produce a structured summary with the key findings.",
	taskTranscription: "Transcribe the provided material verbatim, marking unclear passages.",
	taskProofreading:  "Proofread and correct the provided text. List notable corrections at the end.",
	taskGeneral:       "Complete the task described below and produce the deliverable as text.",
}

// Worker performs gig tasks via the LLM. Completed results are cached
// per job and revision so a retry that re-enters the working stage
// returns the existing deliverable instead of redoing the work.
type Worker struct {
	llm    interfaces.LLMService // nil when provider is "none"
	logger arbor.ILogger

	mu      sync.Mutex
	results map[string]*models.TaskResult // "jobID/revision"
}

func NewWorker(llm interfaces.LLMService, logger arbor.ILogger) *Worker {
	return &Worker{
		llm:     llm,
		logger:  logger,
		results: make(map[string]*models.TaskResult),
	}
}

// ProcessTask produces the deliverable for one job. revisionNotes is
// empty on first pass and carries the client's feedback on rework.
func (w *Worker) ProcessTask(ctx context.Context, jobID string, listing *models.JobListing, revisionNotes string) (*models.TaskResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if listing == nil {
		return nil, fmt.Errorf("listing is required")
	}

	revision := 0
	if revisionNotes != "" {
		revision = w.latestRevision(jobID) + 1
	}

	key := resultKey(jobID, revision)
	w.mu.Lock()
	if cached, ok := w.results[key]; ok {
		w.mu.Unlock()
		w.logger.Debug().
			Str("job_id", jobID).
			Int("revision", revision).
			Msg("Returning cached task result")
		return cached, nil
	}
	w.mu.Unlock()

	kind := classifyTask(listing)

	content, err := w.produce(ctx, kind, listing, revisionNotes)
	if err != nil {
		return nil, fmt.Errorf("task processing failed for job %s: %w", jobID, err)
	}

	result := &models.TaskResult{
		JobID:       jobID,
		Content:     content,
		Summary:     fmt.Sprintf("%s deliverable for %q", kind, listing.Title),
		Revision:    revision,
		CompletedAt: time.Now(),
	}

	w.mu.Lock()
	w.results[key] = result
	w.mu.Unlock()

	w.logger.Info().
		Str("job_id", jobID).
		Str("task_type", string(kind)).
		Int("revision", revision).
		Msg("Completed task")

	return result, nil
}

func (w *Worker) produce(ctx context.Context, kind taskType, listing *models.JobListing, revisionNotes string) (string, error) {
	if w.llm == nil {
		return "", fmt.Errorf("no LLM provider configured, task %q needs manual completion", listing.Title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", listing.Title)
	fmt.Fprintf(&b, "Description:\n%s\n", listing.Description)
	if revisionNotes != "" {
		fmt.Fprintf(&b, "\nThis is a revision. Client feedback:\n%s\n", revisionNotes)
	}

	return w.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: taskPrompts[kind]},
		{Role: "user", Content: b.String()},
	})
}

func (w *Worker) latestRevision(jobID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	latest := 0
	for key, result := range w.results {
		if strings.HasPrefix(key, jobID+"/") && result.Revision > latest {
			latest = result.Revision
		}
	}
	return latest
}

func classifyTask(listing *models.JobListing) taskType {
	text := strings.ToLower(listing.Title + " " + listing.Description + " " + listing.Category)
	for _, entry := range taskKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.kind
			}
		}
	}
	return taskGeneral
}

func resultKey(jobID string, revision int) string {
	return fmt.Sprintf("%s/%d", jobID, revision)
}

var _ interfaces.TaskWorker = (*Worker)(nil)
