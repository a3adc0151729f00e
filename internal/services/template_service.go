package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"lorehub/internal/synthesis"
)

const maxTemplateSize = 100 * 1024 // 100KB

// TemplateFrontmatter is the YAML frontmatter of a prompt template file
type TemplateFrontmatter struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
}

// PromptTemplate is one loaded template. Key is the filename without
// extension and must match a prompt kind ("document", "transcript",
// "vision", "holistic_synthesis") to override the built-in default.
type PromptTemplate struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Body        string `json:"-"`
}

// TemplateService loads prompt templates from a directory and hot-reloads
// them on change. It feeds the prompt builder as its template source;
// missing or empty templates fall back to the built-in defaults.
type TemplateService struct {
	dir       string
	mu        sync.RWMutex
	templates map[string]PromptTemplate
	watcher   *fsnotify.Watcher
}

var _ synthesis.TemplateSource = (*TemplateService)(nil)

// NewTemplateService creates a template service for a directory. The
// directory not existing is fine; defaults are used until it appears.
func NewTemplateService(dir string) *TemplateService {
	return &TemplateService{
		dir:       dir,
		templates: make(map[string]PromptTemplate),
	}
}

// Template returns the body of a loaded template by key. Implements the
// prompt builder's template source.
func (s *TemplateService) Template(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[key]
	if !ok {
		return "", false
	}
	return tpl.Body, true
}

// List returns the loaded templates sorted by key
func (s *TemplateService) List() []PromptTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]PromptTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		templates = append(templates, tpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Key < templates[j].Key })
	return templates
}

// LoadAll reads every .md file in the template directory. A missing
// directory loads zero templates without error.
func (s *TemplateService) LoadAll() error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		log.Printf("📝 [TEMPLATES] Directory %s does not exist, using built-in prompts", s.dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	loaded := make(map[string]PromptTemplate)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("⚠️ [TEMPLATES] Failed to read %s: %v", path, err)
			continue
		}

		fm, body, err := ParseTemplateFile(string(data))
		if err != nil {
			log.Printf("⚠️ [TEMPLATES] Skipping %s: %v", path, err)
			continue
		}

		key := strings.TrimSuffix(entry.Name(), ".md")
		loaded[key] = PromptTemplate{
			Key:         key,
			Name:        fm.Name,
			Description: fm.Description,
			Body:        body,
		}
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()

	log.Printf("✅ [TEMPLATES] Loaded %d prompt templates from %s", len(loaded), s.dir)
	return nil
}

// Watch starts watching the template directory and reloads on changes,
// debounced so editors that write multiple events trigger one reload.
func (s *TemplateService) Watch() error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		log.Printf("📝 [TEMPLATES] Not watching %s: directory does not exist", s.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	log.Printf("👁️  [TEMPLATES] Watching %s for changes (hot-reload enabled)", s.dir)

	go func() {
		var debounceTimer *time.Timer
		debounceDuration := 500 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".md") {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 [TEMPLATES] Detected changes in %s, reloading...", s.dir)
					if err := s.LoadAll(); err != nil {
						log.Printf("❌ [TEMPLATES] Reload failed: %v", err)
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ [TEMPLATES] Watcher error: %v", err)
			}
		}
	}()

	return nil
}

// Close stops the directory watcher
func (s *TemplateService) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// ParseTemplateFile splits template file content into YAML frontmatter and
// body. Content without frontmatter delimiters is all body.
func ParseTemplateFile(content string) (*TemplateFrontmatter, string, error) {
	if len(content) > maxTemplateSize {
		return nil, "", fmt.Errorf("content exceeds maximum size of %d bytes", maxTemplateSize)
	}

	// Normalize line endings
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)

	if content == "" {
		return nil, "", fmt.Errorf("empty content")
	}

	fm := &TemplateFrontmatter{}

	if !strings.HasPrefix(content, "---\n") {
		return fm, content, nil
	}

	// Find closing delimiter (skip the opening "---\n")
	rest := content[4:]
	closingIdx := strings.Index(rest, "\n---")
	if closingIdx == -1 {
		// Only opening delimiter, no closing; treat entire content as body
		return fm, content, nil
	}

	yamlContent := rest[:closingIdx]
	body := strings.TrimSpace(rest[closingIdx+4:]) // skip "\n---"

	if err := yaml.Unmarshal([]byte(yamlContent), fm); err != nil {
		return nil, "", fmt.Errorf("invalid YAML frontmatter: %w", err)
	}

	return fm, body, nil
}
