// Package templates renders the systemd unit and nginx site that run
// kryodeploy on a host.
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Template names
const (
	NginxSite      = "nginx-site"
	SystemdService = "systemd-service"
)

//go:embed files/*.template
var builtin embed.FS

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join("/etc", "kryodeploy", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name. A file in one of
// GetTemplatePaths wins over the built-in copy.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("files/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("template %s: %w", name, err)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution; a placeholder
// left without a value is an error.
//
// Example:
//
//	data := TemplateData{
//	    "DOMAIN": "deploy.example.com",
//	    "PORT":   "8082",
//	}
//	rendered, err := Render(NginxSite, data)
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}

	if missing := placeholders(rendered); len(missing) > 0 {
		return "", fmt.Errorf("template %s: missing values for %s", templateName, strings.Join(missing, ", "))
	}

	return rendered, nil
}

// ServiceOptions describes a systemd unit for kryodeploy.
type ServiceOptions struct {
	Service    string
	User       string
	Group      string
	Binary     string
	ConfigFile string
	EnvFile    string
	Workdir    string
	DBPath     string
	LogFile    string
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(o ServiceOptions) (string, error) {
	return Render(SystemdService, TemplateData{
		"SERVICE":     o.Service,
		"USER":        o.User,
		"GROUP":       o.Group,
		"BINARY":      o.Binary,
		"CONFIG_FILE": o.ConfigFile,
		"ENV_FILE":    o.EnvFile,
		"WORKING_DIR": o.Workdir,
		"STATE_DIR":   filepath.Dir(o.DBPath),
		"LOG_DIR":     filepath.Dir(o.LogFile),
	})
}

// RenderNginxSite renders the nginx site template.
func RenderNginxSite(domain string, port int) (string, error) {
	return Render(NginxSite, TemplateData{
		"DOMAIN": domain,
		"PORT":   fmt.Sprint(port),
	})
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		NginxSite,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	for _, n := range ListTemplates() {
		if n == name {
			return true
		}
	}
	return false
}

// placeholders lists the {{NAME}} markers still present in s.
func placeholders(s string) []string {
	seen := map[string]bool{}
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			break
		}
		seen[s[start+2:start+end]] = true
		s = s[start+end+2:]
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
