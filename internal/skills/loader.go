package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const packFileName = "SKILL.md"

var errInvalidPackYAML = errors.New("invalid prompt pack YAML frontmatter")

// PromptPack is extra operator-written guidance for the agent, loaded from
// <dir>/<pack>/SKILL.md. The body is appended to the system prompt when the
// pack's keywords match the user's utterance.
type PromptPack struct {
	Name        string
	Description string
	Keywords    []string
	Prompt      string
}

type packFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// Matches reports whether any pack keyword occurs in the utterance.
// A pack without keywords matches everything.
func (p *PromptPack) Matches(utterance string) bool {
	if len(p.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(utterance)
	for _, kw := range p.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func LoadPromptPacks(dir string) ([]PromptPack, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat prompt packs dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompt packs path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read prompt packs dir %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	packs := make([]PromptPack, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		packPath := filepath.Join(dir, entry.Name(), packFileName)
		pack, skip, parseErr := parsePackFile(packPath)
		if parseErr != nil {
			return nil, parseErr
		}
		if skip {
			continue
		}

		if prevPath, exists := seen[pack.Name]; exists {
			return nil, fmt.Errorf("duplicate prompt pack name %q in %s (already in %s)", pack.Name, packPath, prevPath)
		}
		seen[pack.Name] = packPath
		packs = append(packs, pack)
	}

	return packs, nil
}

func parsePackFile(path string) (PromptPack, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PromptPack{}, true, nil
		}
		return PromptPack{}, false, fmt.Errorf("read prompt pack %q: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		if errors.Is(err, errInvalidPackYAML) {
			log.Printf("[skills] warning: skip invalid YAML prompt pack %s: %v", path, err)
			return PromptPack{}, true, nil
		}
		return PromptPack{}, false, fmt.Errorf("parse prompt pack %q: %w", path, err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return PromptPack{}, false, fmt.Errorf("parse prompt pack %q: missing name", path)
	}

	return PromptPack{
		Name:        strings.TrimSpace(meta.Name),
		Description: strings.TrimSpace(meta.Description),
		Keywords:    sanitizeKeywords(meta.Keywords),
		Prompt:      strings.TrimSpace(body),
	}, false, nil
}

func parseFrontmatter(content []byte) (packFrontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return packFrontmatter{}, "", errors.New("missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return packFrontmatter{}, "", errors.New("missing closing frontmatter separator")
	}

	frontmatter := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")

	var meta packFrontmatter
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return packFrontmatter{}, "", fmt.Errorf("%w: %v", errInvalidPackYAML, err)
	}

	return meta, body, nil
}

func sanitizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)

	return out
}
