// Package prompts holds the instruction text sent to the AI backends and the
// fixed user-facing messages of the identify and chat flow.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/vbonduro/pillpal/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

type Messages struct {
	Unknown string `yaml:"unknown"`
	Failed  string `yaml:"failed"`
}

type file struct {
	Identify      string   `yaml:"identify"`
	System        string   `yaml:"system"`
	Greeting      string   `yaml:"greeting"`
	FallbackReply string   `yaml:"fallback_reply"`
	Messages      Messages `yaml:"messages"`
}

// Set is a parsed prompt set. It is safe for concurrent use.
type Set struct {
	Identify      string
	FallbackReply string
	Messages      Messages

	system   *template.Template
	greeting *template.Template
}

var funcs = template.FuncMap{"join": strings.Join}

// Default returns the embedded prompt set.
func Default() *Set {
	s, err := parse(defaultYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return s
}

// Load returns the embedded prompt set with any non-empty keys from path
// layered on top. An empty path yields the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return parse(defaultYAML, data)
}

func parse(base, override []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(base, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if override != nil {
		var o file
		if err := yaml.Unmarshal(override, &o); err != nil {
			return nil, fmt.Errorf("failed to parse prompts override: %w", err)
		}
		merge(&f, &o)
	}

	system, err := template.New("system").Funcs(funcs).Parse(f.System)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system prompt: %w", err)
	}
	greeting, err := template.New("greeting").Funcs(funcs).Parse(f.Greeting)
	if err != nil {
		return nil, fmt.Errorf("failed to parse greeting: %w", err)
	}

	return &Set{
		Identify:      strings.TrimSpace(f.Identify),
		FallbackReply: f.FallbackReply,
		Messages:      f.Messages,
		system:        system,
		greeting:      greeting,
	}, nil
}

func merge(dst, src *file) {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Identify, src.Identify)
	set(&dst.System, src.System)
	set(&dst.Greeting, src.Greeting)
	set(&dst.FallbackReply, src.FallbackReply)
	set(&dst.Messages.Unknown, src.Messages.Unknown)
	set(&dst.Messages.Failed, src.Messages.Failed)
}

// SystemInstruction renders the conversation system instruction for m.
func (s *Set) SystemInstruction(m *domain.Medication) (string, error) {
	return render(s.system, m)
}

// Greeting renders the first model turn shown after a successful identification.
func (s *Set) Greeting(m *domain.Medication) (string, error) {
	return render(s.greeting, m)
}

func render(t *template.Template, m *domain.Medication) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, m); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
