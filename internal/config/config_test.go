package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr string
	}{
		{"complete", ModelConfig{BaseURL: "https://api.example.com", APIKey: "sk", Model: "m"}, ""},
		{"missing base url", ModelConfig{APIKey: "sk", Model: "m"}, "base_url"},
		{"missing key", ModelConfig{BaseURL: "u", Model: "m"}, "api_key"},
		{"missing model", ModelConfig{BaseURL: "u", APIKey: "sk"}, "model.model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestRulesText(t *testing.T) {
	r := Rules{Tone: "正式", Language: "中文"}
	text := r.Text()
	if !strings.Contains(text, "语气: 正式") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "语言: 中文") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "风格") {
		t.Errorf("blank fields should be omitted: %q", text)
	}
}

func TestRulesTextEmpty(t *testing.T) {
	if got := (Rules{}).Text(); got != "" {
		t.Errorf("empty rules should render empty, got %q", got)
	}
}

func TestLoadRulesProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "academic.yaml")
	data := "tone: formal\nstyle: academic\nlanguage: English\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRulesProfile(path)
	if err != nil {
		t.Fatalf("LoadRulesProfile: %v", err)
	}
	if r.Tone != "formal" || r.Style != "academic" || r.Language != "English" {
		t.Errorf("rules = %+v", r)
	}
}

func TestLoadRulesProfileMissing(t *testing.T) {
	if _, err := LoadRulesProfile("/nonexistent/rules.yaml"); err == nil {
		t.Fatal("expected error for missing profile")
	}
}
