package inbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shinkai-net/shinkai-node/crypto"
	"github.com/shinkai-net/shinkai-node/envelope"
	"github.com/shinkai-net/shinkai-node/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.OpenBoltStore(filepath.Join(t.TempDir(), "shinkai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func makeEnvelope(t *testing.T, content string, ts time.Time) *envelope.Envelope {
	t.Helper()
	signKP, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	b := envelope.NewBuilder(fixedClock{ts})
	b.WithContent(content, envelope.SchemaTagJobMessage)
	b.WithRouting("main", "main", "job_inbox::job1::false")
	b.WithExternalMeta("@@n1", "@@n1", "main", nil)

	env, err := b.Build(signKP.Private)
	require.NoError(t, err)
	return env
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time                       { return f.t }
func (f fixedClock) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

func TestInsertAndGetMessage(t *testing.T) {
	s := newTestStore(t)
	env := makeEnvelope(t, "Hello World 1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	h, err := s.Insert("job_inbox::job1::false", env, nil, nil)
	require.NoError(t, err)

	got, err := s.Get("job_inbox::job1::false", h)
	require.NoError(t, err)
	require.Equal(t, "Hello World 1", got.Body.MessageData.RawContent)
}

func TestInsertDuplicateIsRejected(t *testing.T) {
	s := newTestStore(t)
	env := makeEnvelope(t, "Hello World 1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Insert("job_inbox::job1::false", env, nil, nil)
	require.NoError(t, err)

	_, err = s.Insert("job_inbox::job1::false", env, nil, nil)
	require.ErrorIs(t, err, ErrDuplicate)
}

// TestThreeLevelTree builds the four-message tree 1 -> {2,3}, 2 -> {4}
// and checks LastN returns three levels.
func TestThreeLevelTree(t *testing.T) {
	s := newTestStore(t)
	inboxName := "job_inbox::job1::false"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m1 := makeEnvelope(t, "Hello World 1", base)
	h1, err := s.Insert(inboxName, m1, nil, nil)
	require.NoError(t, err)

	m2 := makeEnvelope(t, "Hello World 2", base.Add(1*time.Second))
	h2, err := s.Insert(inboxName, m2, &h1, nil)
	require.NoError(t, err)

	m3 := makeEnvelope(t, "Hello World 3", base.Add(2*time.Second))
	_, err = s.Insert(inboxName, m3, &h1, nil)
	require.NoError(t, err)

	m4 := makeEnvelope(t, "Hello World 4", base.Add(3*time.Second))
	_, err = s.Insert(inboxName, m4, &h2, nil)
	require.NoError(t, err)

	groups, err := s.LastN(inboxName, 4, 0)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	require.Len(t, groups[0], 1)
	require.Len(t, groups[1], 2)
	require.Len(t, groups[2], 1)

	require.Equal(t, "Hello World 1", groups[0][0].Body.MessageData.RawContent)
	require.Equal(t, "Hello World 2", groups[1][0].Body.MessageData.RawContent)
	require.Equal(t, "Hello World 3", groups[1][1].Body.MessageData.RawContent)
	require.Equal(t, "Hello World 4", groups[2][0].Body.MessageData.RawContent)
}

// TestOutOfOrderInsert checks that messages inserted
// out of timestamp order still produce the tree defined by parent_hash.
func TestOutOfOrderInsert(t *testing.T) {
	s := newTestStore(t)
	inboxName := "job_inbox::job1::false"
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	t3 := t1.Add(1 * time.Hour)

	m1 := makeEnvelope(t, "m1", t1)
	h1, err := s.Insert(inboxName, m1, nil, nil)
	require.NoError(t, err)

	m3 := makeEnvelope(t, "m3", t3)
	h3, err := s.Insert(inboxName, m3, &h1, nil)
	require.NoError(t, err)

	m2 := makeEnvelope(t, "m2", t2)
	_, err = s.Insert(inboxName, m2, &h3, nil)
	require.NoError(t, err)

	groups, err := s.LastN(inboxName, 3, 0)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	require.Equal(t, "m1", groups[0][0].Body.MessageData.RawContent)
	require.Equal(t, "m3", groups[1][0].Body.MessageData.RawContent)
	require.Equal(t, "m2", groups[2][0].Body.MessageData.RawContent)
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)

	job, err := s.CreateJob("job1", "agent1", nil, false)
	require.NoError(t, err)
	require.Equal(t, "job_inbox::job1::false", job.InboxName)

	require.NoError(t, s.AppendStep("job1", []SubPrompt{{Role: "user", Content: "hi", Priority: 1}}))
	require.NoError(t, s.SetExecutionContext("job1", map[string]string{"k": "v"}))
	require.NoError(t, s.ChangeProvider("job1", "agent2"))
	require.NoError(t, s.MarkFinished("job1"))

	got, err := s.GetJob("job1")
	require.NoError(t, err)
	require.True(t, got.IsFinished)
	require.Equal(t, "agent2", got.LLMProviderID)
	require.Equal(t, "v", got.ExecutionContext["k"])
	require.Len(t, got.StepHistory, 1)

	jobs, err := s.ListJobsByProvider("agent2")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, s.ReviseStep("job1", 0, []SubPrompt{{Role: "user", Content: "hi revised", Priority: 1}}, time.Now().UTC()))
	full, err := s.GetStepHistory("job1", true)
	require.NoError(t, err)
	require.Len(t, full[0].Revisions, 1)

	latestOnly, err := s.GetStepHistory("job1", false)
	require.NoError(t, err)
	require.Empty(t, latestOnly[0].Revisions)
	require.Equal(t, "hi revised", latestOnly[0].SubPrompts[0].Content)
}
