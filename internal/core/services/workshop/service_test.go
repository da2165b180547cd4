package workshop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/discovery"
)

// mockRunRepo implements RunRepository in memory
type mockRunRepo struct {
	nextID uint
	runs   map[uint]*domain.ClusterTestRun
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uint]*domain.ClusterTestRun)}
}

func (m *mockRunRepo) CreateRun(ctx context.Context, run *domain.ClusterTestRun) error {
	m.nextID++
	run.ID = m.nextID
	run.CreatedAt = time.Now()
	m.runs[run.ID] = run
	return nil
}

func (m *mockRunRepo) GetRun(ctx context.Context, id uint) (*domain.ClusterTestRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %d not found", id)
	}
	return run, nil
}

func (m *mockRunRepo) ListRuns(ctx context.Context) ([]domain.ClusterTestRun, error) {
	out := make([]domain.ClusterTestRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (m *mockRunRepo) DeleteRun(ctx context.Context, id uint) error {
	delete(m.runs, id)
	return nil
}

// mockTable implements TableSource with fixed columns
type mockTable struct {
	columns map[string][]string
}

func (m *mockTable) ColumnValues(ctx context.Context, fileID, column string) ([]string, error) {
	values, ok := m.columns[column]
	if !ok {
		return nil, fmt.Errorf("column %q not present", column)
	}
	return values, nil
}

// failingChatModel always errors, to force llm-engine discovery failures
type failingChatModel struct{}

func (failingChatModel) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", fmt.Errorf("model unavailable")
}

// prefixEmbedder puts texts sharing a first letter on the same axis
type prefixEmbedder struct{}

func (prefixEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		if len(t) > 0 && t[0] >= 'a' && t[0] <= 'z' {
			v[t[0]-'a'] = 1
		}
		out[i] = v
	}
	return out, nil
}

func clusterColumn() []string {
	return []string{
		"apples are great", "apples again", "apple pie", "apples forever", "apple sauce",
		"bananas rock", "banana bread", "bananas always", "banana split", "banana smoothie",
	}
}

func newTestService(t *testing.T, repo *mockRunRepo, cache ResultCache) *Service {
	t.Helper()

	registry := discovery.NewRegistry()
	registry.Register(discovery.NewLLMEngine(failingChatModel{}, nil))
	registry.Register(discovery.NewClusteringEngine(prefixEmbedder{}, nil, nil))

	table := &mockTable{columns: map[string][]string{
		"fruit":    clusterColumn(),
		"feedback": clusterColumn(),
	}}

	return NewService(registry, repo, table, cache, nil, Config{}, nil)
}

func TestService_BatchRunsAreIndependent(t *testing.T) {
	repo := newMockRunRepo()
	svc := newTestService(t, repo, NewMemoryCache(time.Hour))

	outcomes := svc.RunAll(context.Background(), []ClusterTestRequest{
		{FileID: "f1", FileName: "survey.csv", ColumnName: "feedback", Engine: domain.EngineLLM, SampleSize: 50, MaxCodes: 10},
		{FileID: "f1", FileName: "survey.csv", ColumnName: "fruit", Engine: domain.EngineClustering, MaxCodes: 10},
	})
	require.Len(t, outcomes, 2)

	// The llm run fails (model unavailable) without blocking the sibling
	assert.Error(t, outcomes[0].Err)
	assert.Nil(t, outcomes[0].Run)

	require.NoError(t, outcomes[1].Err)
	require.NotNil(t, outcomes[1].Run)
	assert.Equal(t, domain.SampleSizeFullCorpus, outcomes[1].Run.SampleSize)

	// Only the successful run was persisted
	runs, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestService_RunPersistsAndCachesDetail(t *testing.T) {
	repo := newMockRunRepo()
	cache := NewMemoryCache(time.Hour)
	svc := newTestService(t, repo, cache)

	run, err := svc.Run(context.Background(), ClusterTestRequest{
		FileID:     "f1",
		FileName:   "survey.csv",
		ColumnName: "fruit",
		Engine:     domain.EngineClustering,
		MaxCodes:   10,
	})
	require.NoError(t, err)
	require.Len(t, run.Results, 2)

	total := 0
	for _, def := range run.Results {
		total += def.Count
	}
	assert.Equal(t, len(clusterColumn()), total)

	detail, err := svc.ClassifiedData(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, len(clusterColumn()), detail.Data.Total())
	assert.Equal(t, "fruit", detail.Meta.ColumnName)
	assert.Equal(t, domain.EngineClustering, detail.Meta.Engine)
}

func TestService_TooFewRows(t *testing.T) {
	repo := newMockRunRepo()
	svc := newTestService(t, repo, nil)
	svc.files = &mockTable{columns: map[string][]string{"sparse": {"one", "", "two", ""}}}

	_, err := svc.Run(context.Background(), ClusterTestRequest{
		FileID:     "f1",
		ColumnName: "sparse",
		Engine:     domain.EngineClustering,
	})
	assert.Error(t, err)
}

func TestService_UnknownEngineRejected(t *testing.T) {
	svc := newTestService(t, newMockRunRepo(), nil)

	_, err := svc.Run(context.Background(), ClusterTestRequest{
		FileID:     "f1",
		ColumnName: "fruit",
		Engine:     "bertopic",
	})
	assert.Error(t, err)
}

func TestService_DeleteRun(t *testing.T) {
	repo := newMockRunRepo()
	svc := newTestService(t, repo, nil)

	run, err := svc.Run(context.Background(), ClusterTestRequest{
		FileID:     "f1",
		ColumnName: "fruit",
		Engine:     domain.EngineClustering,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRun(context.Background(), run.ID))
	_, err = svc.GetRun(context.Background(), run.ID)
	assert.Error(t, err)

	assert.Error(t, svc.DeleteRun(context.Background(), run.ID), "deleting twice is a not-found")
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	cache := NewMemoryCache(30 * 24 * time.Hour)

	data := domain.ClassifiedData{"Pricing": {"too expensive"}}
	meta := CacheMeta{ColumnName: "feedback", Engine: domain.EngineLLM, SampleSize: 50}

	id, err := cache.Put(context.Background(), data, meta)
	require.NoError(t, err)

	got, err := cache.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, "feedback", got.Meta.ColumnName)
	assert.False(t, got.Meta.CreatedAt.IsZero())
}

func TestMemoryCache_ExpiryAndUnknownLookAlike(t *testing.T) {
	cache := NewMemoryCache(30 * 24 * time.Hour)

	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	id, err := cache.Put(context.Background(), domain.ClassifiedData{"A": {"x"}}, CacheMeta{})
	require.NoError(t, err)

	// Jump past the TTL
	cache.SetClock(func() time.Time { return now.Add(30*24*time.Hour + time.Minute) })

	_, expiredErr := cache.Get(context.Background(), id)
	_, unknownErr := cache.Get(context.Background(), "never-existed")

	assert.ErrorIs(t, expiredErr, ErrCacheMiss)
	assert.ErrorIs(t, unknownErr, ErrCacheMiss)
	assert.Equal(t, expiredErr, unknownErr, "expiry and absence are indistinguishable")
}
