// internal/catalog/catalog.go
package catalog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/stickersmith/internal/types"
)

// Catalog is the immutable template set loaded once at startup. Every
// template is validated at load time; a catalog that fails validation
// never becomes a Catalog value.
type Catalog struct {
	templates []types.Template
	byID      map[types.TemplateID]int
}

// Load reads and validates the template catalog at path. All violations
// are reported together, not just the first.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("template catalog %s does not exist (run `stickersmith templates init` to create a starter file)", path)
		}
		return nil, fmt.Errorf("read template catalog: %w", err)
	}

	var templates []types.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	if violations := Validate(templates); len(violations) > 0 {
		return nil, fmt.Errorf("invalid template catalog %s:\n  %s", path, strings.Join(violations, "\n  "))
	}

	byID := make(map[types.TemplateID]int, len(templates))
	for i, tpl := range templates {
		byID[tpl.ID] = i
	}
	return &Catalog{templates: templates, byID: byID}, nil
}

// Validate checks the template set and returns every violated rule.
func Validate(templates []types.Template) []string {
	var violations []string
	if len(templates) == 0 {
		return []string{"catalog is empty: at least one template is required"}
	}

	seen := make(map[types.TemplateID]bool, len(templates))
	for i, tpl := range templates {
		where := fmt.Sprintf("template %d (%s)", i, tpl.ID)
		if tpl.ID == "" {
			where = fmt.Sprintf("template %d", i)
			violations = append(violations, where+": id is required")
		} else if seen[tpl.ID] {
			violations = append(violations, where+": duplicate id")
		}
		seen[tpl.ID] = true

		if tpl.DisplayName == "" {
			violations = append(violations, where+": display_name is required")
		}
		if n := glyphCount(tpl.EmojiGlyph); n == 0 {
			violations = append(violations, where+": emoji_glyph is required")
		} else if n > 2 {
			violations = append(violations, fmt.Sprintf("%s: emoji_glyph %q is %d display units, max 2", where, tpl.EmojiGlyph, n))
		}
		if err := checkLocator(tpl.SourceImageLocator); err != nil {
			violations = append(violations, fmt.Sprintf("%s: source_image_locator: %v", where, err))
		}
	}
	return violations
}

// glyphCount counts display units in an emoji sequence. Variation
// selectors, zero-width joiners, and skin-tone modifiers extend the
// preceding glyph and are not counted.
func glyphCount(s string) int {
	count := 0
	for _, r := range s {
		switch {
		case r == 0xFE0F || r == 0x200D:
			continue
		case r >= 0x1F3FB && r <= 0x1F3FF:
			continue
		default:
			count++
		}
	}
	return count
}

func checkLocator(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Templates returns a copy of the template list in catalog order.
func (c *Catalog) Templates() []types.Template {
	out := make([]types.Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get finds a template by id.
func (c *Catalog) Get(id types.TemplateID) (*types.Template, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	tpl := c.templates[i]
	return &tpl, true
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return len(c.templates)
}

// WriteStarter writes an example catalog to path using atomic write
// (temp file + rename). Fails if the file already exists.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("template catalog already exists: %s", path)
	}

	starter := []types.Template{
		{ID: "wizard", DisplayName: "Wizard", EmojiGlyph: "🧙", SourceImageLocator: "https://templates.example.com/wizard.png", Description: "Pointy hat, glowing staff"},
		{ID: "astronaut", DisplayName: "Astronaut", EmojiGlyph: "🚀", SourceImageLocator: "https://templates.example.com/astronaut.png", Description: "Suited up on a spacewalk"},
		{ID: "pirate", DisplayName: "Pirate", EmojiGlyph: "🏴‍☠️", SourceImageLocator: "https://templates.example.com/pirate.png", Description: "Tricorn and parrot"},
		{ID: "detective", DisplayName: "Detective", EmojiGlyph: "🕵️", SourceImageLocator: "https://templates.example.com/detective.png", Description: "Trench coat, magnifying glass"},
		{ID: "chef", DisplayName: "Chef", EmojiGlyph: "👨‍🍳", SourceImageLocator: "https://templates.example.com/chef.png", Description: "Toque and whisk"},
		{ID: "rockstar", DisplayName: "Rockstar", EmojiGlyph: "🎸", SourceImageLocator: "https://templates.example.com/rockstar.png", Description: "Stage lights, leather jacket"},
		{ID: "knight", DisplayName: "Knight", EmojiGlyph: "⚔️", SourceImageLocator: "https://templates.example.com/knight.png", Description: "Full plate armor"},
		{ID: "surfer", DisplayName: "Surfer", EmojiGlyph: "🏄", SourceImageLocator: "https://templates.example.com/surfer.png", Description: "Riding a big wave"},
		{ID: "vampire", DisplayName: "Vampire", EmojiGlyph: "🧛", SourceImageLocator: "https://templates.example.com/vampire.png", Description: "Cape and fangs"},
		{ID: "superhero", DisplayName: "Superhero", EmojiGlyph: "🦸", SourceImageLocator: "https://templates.example.com/superhero.png", Description: "Cape in the wind"},
	}

	data, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal starter catalog: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write starter catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename starter catalog: %w", err)
	}
	return nil
}
