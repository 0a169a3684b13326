package inbox

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shinkai-net/shinkai-node/apierr"
	"github.com/shinkai-net/shinkai-node/kv"
)

const jobFamily = "job"

// SubPrompt is one ordered turn within a Step: a user or assistant message
// carrying a priority weight.
type SubPrompt struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
}

// StepRevision is a prior version of a Step's sub-prompts, preserved when
// the step is revised.
type StepRevision struct {
	SubPrompts []SubPrompt `json:"sub_prompts"`
	RevisedAt  time.Time   `json:"revised_at"`
}

// Step holds the ordered sub-prompts making up one turn of a job's
// conversation, plus any prior revisions.
type Step struct {
	SubPrompts []SubPrompt    `json:"sub_prompts"`
	Revisions  []StepRevision `json:"revisions,omitempty"`
}

// Job is a long-running conversation with an LLM provider.
type Job struct {
	JobID            string            `json:"job_id"`
	LLMProviderID    string            `json:"llm_provider_id"`
	Scope            json.RawMessage   `json:"scope"`
	IsHidden         bool              `json:"is_hidden"`
	IsFinished       bool              `json:"is_finished"`
	StepHistory      []Step            `json:"step_history"`
	ExecutionContext map[string]string `json:"execution_context"`
	InboxName        string            `json:"inbox_name"`
}

func jobKey(jobID string) []byte { return []byte("job:" + jobID) }
func jobByProviderKey(providerID, jobID string) []byte {
	return []byte("job_by_provider:" + providerID + ":" + jobID)
}
func jobByProviderPrefix(providerID string) []byte {
	return []byte("job_by_provider:" + providerID + ":")
}

// CreateJob persists a new Job, deriving its job inbox name and indexing
// it under its LLM provider.
func (s *Store) CreateJob(jobID, llmProviderID string, scope json.RawMessage, isHidden bool) (*Job, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "CreateJob",
		"package":  "inbox",
		"job_id":   jobID,
	})

	exists, err := s.kv.Has(jobFamily, jobKey(jobID))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierr.New(apierr.KindAlreadyExists, "inbox: job "+jobID+" already exists")
	}

	job := &Job{
		JobID:            jobID,
		LLMProviderID:    llmProviderID,
		Scope:            scope,
		IsHidden:         isHidden,
		ExecutionContext: map[string]string{},
		InboxName:        JobName(jobID, false),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Batch(
		kv.Put(jobFamily, jobKey(jobID), raw),
		kv.Put(jobFamily, jobByProviderKey(llmProviderID, jobID), presentMarker),
	); err != nil {
		return nil, err
	}
	logger.Info("job created")
	return job, nil
}

// GetJob loads a Job by id.
func (s *Store) GetJob(jobID string) (*Job, error) {
	raw, err := s.kv.Get(jobFamily, jobKey(jobID))
	if err == kv.ErrNotFound {
		return nil, apierr.New(apierr.KindNotFound, "inbox: job "+jobID+" not found")
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) putJob(job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.kv.Batch(kv.Put(jobFamily, jobKey(job.JobID), raw))
}

// ListJobsByProvider returns every job created against llmProviderID.
func (s *Store) ListJobsByProvider(llmProviderID string) ([]*Job, error) {
	var jobIDs []string
	prefix := jobByProviderPrefix(llmProviderID)
	if err := s.kv.PrefixScan(jobFamily, prefix, func(e kv.Entry) bool {
		jobIDs = append(jobIDs, string(e.Key[len(prefix):]))
		return true
	}); err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := s.GetJob(id)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// ChangeProvider reassigns job to a new LLM provider, updating the
// provider index.
func (s *Store) ChangeProvider(jobID, newProviderID string) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	oldProviderID := job.LLMProviderID
	job.LLMProviderID = newProviderID
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.kv.Batch(
		kv.Put(jobFamily, jobKey(jobID), raw),
		kv.Delete(jobFamily, jobByProviderKey(oldProviderID, jobID)),
		kv.Put(jobFamily, jobByProviderKey(newProviderID, jobID), presentMarker),
	)
}

// MarkFinished sets job.is_finished.
func (s *Store) MarkFinished(jobID string) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	job.IsFinished = true
	return s.putJob(job)
}

// AppendStep appends a new Step to job's step_history. Step history
// appends are append-only; use ReviseStep to amend an
// existing step.
func (s *Store) AppendStep(jobID string, subPrompts []SubPrompt) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	job.StepHistory = append(job.StepHistory, Step{SubPrompts: subPrompts})
	return s.putJob(job)
}

// ReviseStep replaces the sub-prompts of step stepIndex, preserving its
// prior sub-prompts as a revision.
func (s *Store) ReviseStep(jobID string, stepIndex int, subPrompts []SubPrompt, revisedAt time.Time) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	if stepIndex < 0 || stepIndex >= len(job.StepHistory) {
		return apierr.New(apierr.KindNotFound, "inbox: step index out of range")
	}
	step := &job.StepHistory[stepIndex]
	step.Revisions = append(step.Revisions, StepRevision{SubPrompts: step.SubPrompts, RevisedAt: revisedAt})
	step.SubPrompts = subPrompts
	return s.putJob(job)
}

// SetExecutionContext merges ctx into job.execution_context.
func (s *Store) SetExecutionContext(jobID string, ctx map[string]string) error {
	job, err := s.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.ExecutionContext == nil {
		job.ExecutionContext = map[string]string{}
	}
	for k, v := range ctx {
		job.ExecutionContext[k] = v
	}
	return s.putJob(job)
}

// GetStepHistory returns job's steps. When includeRevisions is false, each
// returned Step carries only its latest sub-prompts (Revisions cleared).
func (s *Store) GetStepHistory(jobID string, includeRevisions bool) ([]Step, error) {
	job, err := s.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if includeRevisions {
		return job.StepHistory, nil
	}
	out := make([]Step, len(job.StepHistory))
	for i, step := range job.StepHistory {
		out[i] = Step{SubPrompts: step.SubPrompts}
	}
	return out, nil
}
