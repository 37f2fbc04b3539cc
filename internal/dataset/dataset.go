// Package dataset loads, filters, describes and saves evaluation datasets:
// questions paired with ground-truth SQL.
package dataset

import (
	"fmt"
	"slices"
	"strings"
)

const (
	defaultName    = "Unknown"
	defaultVersion = "1.0.0"
)

// Question is one evaluation item
type Question struct {
	ID                  string   `json:"id" yaml:"id"`
	Question            string   `json:"question" yaml:"question"`
	SQL                 string   `json:"sql" yaml:"sql"`
	ExpectedResultCount *int     `json:"expected_result_count" yaml:"expected_result_count"`
	Difficulty          string   `json:"difficulty,omitempty" yaml:"difficulty"`
	Tags                []string `json:"tags" yaml:"tags"`
	// Schema overrides the dataset schema for this question when set
	Schema string `json:"schema,omitempty" yaml:"schema"`
	// Database names the target database for multi-database datasets
	Database string `json:"db_id,omitempty" yaml:"db_id"`
}

// Dataset is a named collection of questions
type Dataset struct {
	Name        string                 `json:"dataset_name" yaml:"dataset_name"`
	Version     string                 `json:"version" yaml:"version"`
	Description string                 `json:"description" yaml:"description"`
	Schema      map[string]interface{} `json:"schema" yaml:"schema"`
	Questions   []Question             `json:"questions" yaml:"questions"`
}

// Len is the number of questions
func (d *Dataset) Len() int {
	return len(d.Questions)
}

// applyDefaults fills the fields a hand-written file may omit
func (d *Dataset) applyDefaults() {
	if d.Name == "" {
		d.Name = defaultName
	}
	if d.Version == "" {
		d.Version = defaultVersion
	}
	if d.Schema == nil {
		d.Schema = map[string]interface{}{}
	}
	for i := range d.Questions {
		if d.Questions[i].Tags == nil {
			d.Questions[i].Tags = []string{}
		}
	}
}

// Validate reports duplicate ids and questions without text or SQL
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Questions))
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("question %d (%q) needs both question and sql", i, q.ID)
		}
		if q.ID == "" {
			continue
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// SchemaText renders the dataset schema for prompts. Table entries holding a
// list of columns render as "t(a, b)"; anything else as its string form.
func (d *Dataset) SchemaText() string {
	if len(d.Schema) == 0 {
		return ""
	}
	tables := make([]string, 0, len(d.Schema))
	for t := range d.Schema {
		tables = append(tables, t)
	}
	slices.Sort(tables)

	var b strings.Builder
	b.WriteString("tables:")
	for _, t := range tables {
		switch cols := d.Schema[t].(type) {
		case []interface{}:
			names := make([]string, 0, len(cols))
			for _, c := range cols {
				names = append(names, fmt.Sprint(c))
			}
			fmt.Fprintf(&b, "\n  %s(%s)", t, strings.Join(names, ", "))
		case []string:
			fmt.Fprintf(&b, "\n  %s(%s)", t, strings.Join(cols, ", "))
		default:
			fmt.Fprintf(&b, "\n  %s: %v", t, cols)
		}
	}
	return b.String()
}

// QuestionSchema returns q's own schema or the dataset's
func (d *Dataset) QuestionSchema(q Question) string {
	if q.Schema != "" {
		return q.Schema
	}
	return d.SchemaText()
}

func (d *Dataset) derive(name, descSuffix string, questions []Question) *Dataset {
	return &Dataset{
		Name:        name,
		Version:     d.Version,
		Description: d.Description + descSuffix,
		Schema:      d.Schema,
		Questions:   questions,
	}
}

// FilterByDifficulty keeps questions whose difficulty equals difficulty
func (d *Dataset) FilterByDifficulty(difficulty string) *Dataset {
	var kept []Question
	for _, q := range d.Questions {
		if q.Difficulty == difficulty {
			kept = append(kept, q)
		}
	}
	return d.derive(
		fmt.Sprintf("%s (%s)", d.Name, difficulty),
		fmt.Sprintf(" - Filtered by %s difficulty", difficulty),
		kept)
}

// FilterByTags keeps questions carrying at least one of tags
func (d *Dataset) FilterByTags(tags []string) *Dataset {
	var kept []Question
	for _, q := range d.Questions {
		for _, t := range tags {
			if slices.Contains(q.Tags, t) {
				kept = append(kept, q)
				break
			}
		}
	}
	joined := strings.Join(tags, ", ")
	return d.derive(
		fmt.Sprintf("%s (%s)", d.Name, joined),
		" - Filtered by tags: "+joined,
		kept)
}

// Head keeps the first n questions; n <= 0 keeps all
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n >= len(d.Questions) {
		return d
	}
	return d.derive(d.Name, "", d.Questions[:n])
}

// Stats describes a dataset
type Stats struct {
	TotalQuestions         int            `json:"total_questions"`
	DifficultyDistribution map[string]int `json:"difficulty_distribution"`
	TagDistribution        map[string]int `json:"tag_distribution"`
	AvgQuestionLength      float64        `json:"avg_question_length"`
	AvgSQLLength           float64        `json:"avg_sql_length"`
}

// Statistics counts difficulties and tags and averages text lengths in characters
func (d *Dataset) Statistics() Stats {
	s := Stats{
		TotalQuestions:         len(d.Questions),
		DifficultyDistribution: map[string]int{},
		TagDistribution:        map[string]int{},
	}
	if len(d.Questions) == 0 {
		return s
	}
	var qLen, sqlLen int
	for _, q := range d.Questions {
		if q.Difficulty != "" {
			s.DifficultyDistribution[q.Difficulty]++
		}
		for _, t := range q.Tags {
			s.TagDistribution[t]++
		}
		qLen += len([]rune(q.Question))
		sqlLen += len([]rune(q.SQL))
	}
	n := float64(len(d.Questions))
	s.AvgQuestionLength = float64(qLen) / n
	s.AvgSQLLength = float64(sqlLen) / n
	return s
}
