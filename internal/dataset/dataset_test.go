package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2sql/internal/apperrors"
)

func TestDemo(t *testing.T) {
	d := Demo()
	assert.Equal(t, "demo", d.Name)
	assert.Equal(t, 10, d.Len())
	require.NoError(t, d.Validate())
	for _, q := range d.Questions {
		assert.NotNil(t, q.ExpectedResultCount, q.ID)
	}
	assert.Equal(t,
		"tables:\n  items(id, order_id, sku, price)\n  orders(id, user_id, created_at, total)\n  users(id, name, country)",
		d.SchemaText())
}

func TestLoad_DefaultsAndFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, KindCustom), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KindCustom, "tiny.json"),
		[]byte(`{"questions":[{"id":"q1","question":"all users","sql":"SELECT * FROM users"}]}`), 0o644))

	l := NewLoader(dir)
	d, err := l.Load("tiny")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", d.Name)
	assert.Equal(t, "1.0.0", d.Version)
	assert.Equal(t, []string{}, d.Questions[0].Tags)
	assert.Nil(t, d.Questions[0].ExpectedResultCount)

	_, err = l.Load("missing.json")
	assert.ErrorIs(t, err, apperrors.ErrDatasetNotFound)

	demo, err := l.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, 10, demo.Len())
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset_name: yaml-set
questions:
  - id: a
    question: how many users
    sql: SELECT COUNT(*) FROM users
    expected_result_count: 1
    difficulty: easy
    tags: [aggregate]
`), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml-set", d.Name)
	require.NotNil(t, d.Questions[0].ExpectedResultCount)
	assert.Equal(t, 1, *d.Questions[0].ExpectedResultCount)
	assert.Equal(t, []string{"aggregate"}, d.Questions[0].Tags)
}

func TestFilters(t *testing.T) {
	d := Demo()

	easy := d.FilterByDifficulty("easy")
	assert.Equal(t, "demo (easy)", easy.Name)
	assert.Equal(t, 4, easy.Len())
	assert.Contains(t, easy.Description, " - Filtered by easy difficulty")

	joins := d.FilterByTags([]string{"join", "having"})
	assert.Equal(t, "demo (join, having)", joins.Name)
	assert.Equal(t, 3, joins.Len())
	assert.Contains(t, joins.Description, " - Filtered by tags: join, having")

	assert.Equal(t, 0, d.FilterByDifficulty("impossible").Len())
	assert.Equal(t, 2, d.Head(2).Len())
	assert.Equal(t, 10, d.Head(0).Len())
}

func TestStatistics(t *testing.T) {
	s := Demo().Statistics()
	assert.Equal(t, 10, s.TotalQuestions)
	assert.Equal(t, map[string]int{"easy": 4, "medium": 3, "hard": 3}, s.DifficultyDistribution)
	assert.Equal(t, 5, s.TagDistribution["aggregate"])
	assert.Greater(t, s.AvgSQLLength, s.AvgQuestionLength)

	empty := (&Dataset{}).Statistics()
	assert.Equal(t, 0, empty.TotalQuestions)
	assert.Equal(t, 0.0, empty.AvgSQLLength)
}

func TestSaveAndList(t *testing.T) {
	l := NewLoader(t.TempDir())
	d := Demo().FilterByDifficulty("hard")

	path, err := l.Save(d, "hard.json", "")
	require.NoError(t, err)
	assert.FileExists(t, path)
	_, err = l.Save(d, "hard.yaml", KindCustom)
	require.NoError(t, err)

	back, err := l.Load("hard.json")
	require.NoError(t, err)
	assert.Equal(t, d.Name, back.Name)
	assert.Equal(t, d.Questions, back.Questions)

	fromYAML, err := LoadFile(filepath.Join(l.Dir(), KindCustom, "hard.yaml"))
	require.NoError(t, err)
	assert.Equal(t, d.Questions, fromYAML.Questions)

	listed, err := l.List()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{KindCustom: {"hard.json", "hard.yaml"}}, listed)
}

func TestLoadSpider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, KindSpider), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KindSpider, "dev.json"), []byte(`[
		{"db_id":"concert_singer","question":"How many singers do we have?","query":"SELECT count(*) FROM singer"},
		{"db_id":"pets_1","question":"Count the pets","query":"SELECT count(*) FROM pets"}
	]`), 0o644))

	d, err := NewLoader(dir).LoadSpider("dev.json")
	require.NoError(t, err)
	assert.Equal(t, "spider/dev", d.Name)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, "concert_singer_0", d.Questions[0].ID)
	assert.Equal(t, "pets_1", d.Questions[1].Database)
	assert.Equal(t, []string{"pets_1"}, d.Questions[1].Tags)
}

func TestValidate(t *testing.T) {
	d := &Dataset{Questions: []Question{{ID: "a", Question: "q", SQL: "SELECT 1"}, {ID: "a", Question: "q", SQL: "SELECT 1"}}}
	assert.ErrorContains(t, d.Validate(), "duplicate")
	d = &Dataset{Questions: []Question{{ID: "a", Question: "q"}}}
	assert.Error(t, d.Validate())
}
