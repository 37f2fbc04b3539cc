package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"text2sql/internal/apperrors"
)

// Dataset kinds, one sub-directory each under the datasets root
const (
	KindCustom  = "custom"
	KindSpider  = "spider"
	KindWikiSQL = "wikisql"
)

// DemoName loads the built-in demo dataset when no file shadows it
const DemoName = "demo"

//go:embed data/demo.json
var demoJSON []byte

// Demo returns a fresh copy of the built-in dataset for the demo database
func Demo() *Dataset {
	d, err := decode(demoJSON, ".json")
	if err != nil {
		panic(fmt.Sprintf("embedded demo dataset: %v", err))
	}
	return d
}

// Loader reads datasets below a root directory
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir is the datasets root
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads <dir>/custom/<file>. ".json" is tried when file has no
// extension; DemoName falls back to the embedded dataset.
func (l *Loader) Load(file string) (*Dataset, error) {
	path := filepath.Join(l.dir, KindCustom, file)
	if filepath.Ext(file) == "" {
		path += ".json"
	}
	d, err := LoadFile(path)
	if err != nil && errors.Is(err, apperrors.ErrDatasetNotFound) && strings.TrimSuffix(file, ".json") == DemoName {
		return Demo(), nil
	}
	return d, err
}

// LoadFile reads a dataset from path; ".yaml" and ".yml" decode as YAML,
// anything else as JSON.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDatasetNotFound, path)
		}
		return nil, err
	}
	d, err := decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

func decode(data []byte, ext string) (*Dataset, error) {
	var d Dataset
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&d); err != nil {
			return nil, err
		}
	}
	d.applyDefaults()
	return &d, nil
}

// spiderExample is one entry of a Spider dev/train file
type spiderExample struct {
	DBID       string `json:"db_id"`
	Question   string `json:"question"`
	Query      string `json:"query"`
	Difficulty string `json:"difficulty,omitempty"`
}

// LoadSpider reads a Spider-format file (a JSON array of db_id, question,
// query). Question ids are "<db_id>_<index>" and each question is tagged
// with its database.
func (l *Loader) LoadSpider(file string) (*Dataset, error) {
	path := filepath.Join(l.dir, KindSpider, file)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDatasetNotFound, path)
		}
		return nil, err
	}
	var examples []spiderExample
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	d := &Dataset{
		Name:        "spider/" + strings.TrimSuffix(file, filepath.Ext(file)),
		Description: "Spider examples from " + file,
		Questions:   make([]Question, 0, len(examples)),
	}
	for i, ex := range examples {
		d.Questions = append(d.Questions, Question{
			ID:         fmt.Sprintf("%s_%d", ex.DBID, i),
			Question:   ex.Question,
			SQL:        ex.Query,
			Difficulty: ex.Difficulty,
			Tags:       []string{ex.DBID},
			Database:   ex.DBID,
		})
	}
	d.applyDefaults()
	return d, nil
}

// List returns the dataset files per kind. Kinds whose directory is missing
// are left out.
func (l *Loader) List() (map[string][]string, error) {
	out := make(map[string][]string)
	for _, kind := range []string{KindCustom, KindSpider, KindWikiSQL} {
		entries, err := os.ReadDir(filepath.Join(l.dir, kind))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files := []string{}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".json", ".yaml", ".yml":
				files = append(files, e.Name())
			}
		}
		sort.Strings(files)
		out[kind] = files
	}
	return out, nil
}

// Save writes d as indented JSON (or YAML by extension) to <dir>/<kind>/<file>
// and returns the path
func (l *Loader) Save(d *Dataset, file, kind string) (string, error) {
	if kind == "" {
		kind = KindCustom
	}
	dir := filepath.Join(l.dir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, file)

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(d)
	default:
		data, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
