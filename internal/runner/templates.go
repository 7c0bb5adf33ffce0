package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

// #region templates

// Templates are the operator-authored instructions appended to each prompt.
type Templates struct {
	PassA       string
	PassB       string
	Synthesis   string
	Consistency string
}

// TemplateFiles names the file holding each template.
type TemplateFiles struct {
	PassA       string
	PassB       string
	Synthesis   string
	Consistency string
}

// Load reads every template. A missing path, unreadable file or blank file is
// a configuration error naming the offending key.
func (f TemplateFiles) Load() (Templates, error) {
	var t Templates
	entries := []struct {
		key  string
		path string
		dst  *string
	}{
		{"prompts.pass_a", f.PassA, &t.PassA},
		{"prompts.pass_b", f.PassB, &t.PassB},
		{"prompts.synthesis", f.Synthesis, &t.Synthesis},
		{"prompts.consistency", f.Consistency, &t.Consistency},
	}
	for _, e := range entries {
		if strings.TrimSpace(e.path) == "" {
			return Templates{}, &diagnosis.ConfigurationError{Key: e.key, Reason: "no template file configured"}
		}
		data, err := os.ReadFile(e.path)
		if err != nil {
			return Templates{}, &diagnosis.ConfigurationError{Key: e.key, Reason: fmt.Sprintf("read %s: %v", e.path, err)}
		}
		*e.dst = strings.TrimSpace(string(data))
	}
	return t, t.Validate()
}

// Validate rejects blank templates.
func (t Templates) Validate() error {
	for key, v := range map[string]string{
		"prompts.pass_a":      t.PassA,
		"prompts.pass_b":      t.PassB,
		"prompts.synthesis":   t.Synthesis,
		"prompts.consistency": t.Consistency,
	} {
		if strings.TrimSpace(v) == "" {
			return &diagnosis.ConfigurationError{Key: key, Reason: "template is empty"}
		}
	}
	return nil
}

// #endregion templates
