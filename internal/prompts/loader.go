package prompts

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Task names in the catalog
const (
	TaskValidation     = "validation"
	TaskClassification = "classification"
	TaskDifficulty     = "difficulty"
	TaskConcretize     = "concretize"
	TaskConcreteness   = "concreteness"
	TaskSuggestion     = "suggestion"
	TaskCoachFirst     = "coach_first"
	TaskCoachRetry     = "coach_retry"
	TaskCoachStuck     = "coach_stuck"
)

var requiredTasks = []string{
	TaskValidation,
	TaskClassification,
	TaskDifficulty,
	TaskConcretize,
	TaskConcreteness,
	TaskSuggestion,
	TaskCoachFirst,
	TaskCoachRetry,
	TaskCoachStuck,
}

// Loader manages the prompt catalog: the embedded defaults plus any YAML
// overlays loaded from disk.
type Loader struct {
	mu      sync.RWMutex
	catalog catalogFile
	tasks   map[string]*compiledTask
}

type compiledTask struct {
	system *template.Template
	user   *template.Template
}

// NewLoader creates a loader seeded with the embedded catalog
func NewLoader() (*Loader, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(defaultCatalog, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse embedded catalog: %w", err)
	}

	l := &Loader{}
	if err := l.apply(cf); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadFromDir overlays every YAML file in dir onto the catalog
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading prompt overlays from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load prompt overlay", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("prompt overlays loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile overlays a single YAML file onto the catalog. Only the keys
// present in the file replace the current entries.
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var overlay catalogFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.mu.RLock()
	merged := l.catalog.merge(overlay)
	l.mu.RUnlock()

	if err := l.apply(merged); err != nil {
		return err
	}

	slog.Info("prompt overlay loaded", "file", path)
	return nil
}

// apply validates and compiles a catalog, then swaps it in
func (l *Loader) apply(cf catalogFile) error {
	if cf.Action.Base == "" {
		return fmt.Errorf("action.base is required")
	}

	tasks := make(map[string]*compiledTask, len(cf.Tasks))
	for _, name := range requiredTasks {
		tf, ok := cf.Tasks[name]
		if !ok || tf.User == "" {
			return fmt.Errorf("task %q is required", name)
		}
		ct, err := compileTask(name, tf, cf.Declaration)
		if err != nil {
			return err
		}
		tasks[name] = ct
	}

	l.mu.Lock()
	l.catalog = cf
	l.tasks = tasks
	l.mu.Unlock()
	return nil
}

func compileTask(name string, tf taskFile, declaration string) (*compiledTask, error) {
	funcs := template.FuncMap{"inc": func(i int) int { return i + 1 }}

	root := template.New(name).Funcs(funcs)
	if _, err := root.New("declaration").Parse(declaration); err != nil {
		return nil, fmt.Errorf("failed to parse declaration template: %w", err)
	}

	system, err := template.New(name + ".system").Funcs(funcs).Parse(tf.System)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s system template: %w", name, err)
	}

	user, err := root.Parse(tf.User)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s user template: %w", name, err)
	}

	return &compiledTask{system: system, user: user}, nil
}

func (l *Loader) task(name string) (*compiledTask, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tasks[name]
	return t, ok
}

func (l *Loader) snapshot() catalogFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog
}

// --- YAML file structs ---

// catalogFile represents the YAML structure of a prompt catalog
type catalogFile struct {
	Tasks       map[string]taskFile     `yaml:"tasks"`
	Declaration string                  `yaml:"declaration"`
	Action      actionFile              `yaml:"action"`
	Categories  map[string]categoryFile `yaml:"categories"`
	Levels      map[int]levelFile       `yaml:"levels"`
}

type taskFile struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type actionFile struct {
	Base         string            `yaml:"base"`
	Categories   map[string]string `yaml:"categories"`
	Difficulties map[int]string    `yaml:"difficulties"`
	Strategies   map[string]string `yaml:"strategies"`
}

type categoryFile struct {
	Description string `yaml:"description"`
}

type levelFile struct {
	Description string `yaml:"description"`
}

// merge returns c with every non-empty entry of o laid over it
func (c catalogFile) merge(o catalogFile) catalogFile {
	out := catalogFile{
		Tasks:       mergeMap(c.Tasks, o.Tasks),
		Declaration: pick(o.Declaration, c.Declaration),
		Action: actionFile{
			Base:         pick(o.Action.Base, c.Action.Base),
			Categories:   mergeMap(c.Action.Categories, o.Action.Categories),
			Difficulties: mergeMap(c.Action.Difficulties, o.Action.Difficulties),
			Strategies:   mergeMap(c.Action.Strategies, o.Action.Strategies),
		},
		Categories: mergeMap(c.Categories, o.Categories),
		Levels:     mergeMap(c.Levels, o.Levels),
	}
	return out
}

func mergeMap[K comparable, V any](base, overlay map[K]V) map[K]V {
	out := make(map[K]V, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
