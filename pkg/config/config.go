// Package config loads yaml configuration files with environment variable
// expansion, both `{{.VAR}}` template references and `$VAR` forms.
package config

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"
)

// FromFile reads the yaml file at filePath into cfg after expanding
// environment references.
func FromFile(filePath string, cfg interface{}) error {
	envMap := make(map[string]string)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		envMap[pair[0]] = pair[1]
	}

	t, err := template.ParseFiles(filePath)
	if err != nil {
		return fmt.Errorf("config.FromFile(): fail to parse %s: %w", filePath, err)
	}
	rendered := &strings.Builder{}
	if err := t.Execute(rendered, envMap); err != nil {
		return fmt.Errorf("config.FromFile(): fail to render %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(rendered.String())), cfg); err != nil {
		return fmt.Errorf("config.FromFile(): fail to unmarshal %s: %w", filePath, err)
	}
	return nil
}
