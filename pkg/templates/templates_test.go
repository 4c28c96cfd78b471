package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetTemplate_Builtin(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, name := range ListTemplates() {
		content, err := GetTemplate(name)
		if err != nil {
			t.Errorf("GetTemplate(%q) error = %v", name, err)
			continue
		}
		if content == "" {
			t.Errorf("GetTemplate(%q) returned empty content", name)
		}
	}

	if _, err := GetTemplate("apache-site"); err == nil {
		t.Error("Expected unknown template to fail")
	}
}

func TestGetTemplate_Override(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0755); err != nil {
		t.Fatal(err)
	}
	custom := "server { server_name {{DOMAIN}}; listen {{PORT}}; }"
	if err := os.WriteFile(filepath.Join(dir, "templates", "nginx-site.template"), []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := RenderNginxSite("deploy.example.com", 8082)
	if err != nil {
		t.Fatalf("RenderNginxSite() error = %v", err)
	}
	if got != "server { server_name deploy.example.com; listen 8082; }" {
		t.Errorf("override not used, got %q", got)
	}
}

func TestRenderSystemdService(t *testing.T) {
	t.Chdir(t.TempDir())

	got, err := RenderSystemdService(ServiceOptions{
		Service:    "kryonix-webhook",
		User:       "deploy",
		Group:      "deploy",
		Binary:     "/usr/local/bin/kryodeploy",
		ConfigFile: "/etc/kryodeploy/kryodeploy.yaml",
		EnvFile:    "/etc/kryodeploy/kryodeploy.env",
		Workdir:    "/srv/kryonix",
		DBPath:     "/var/lib/kryodeploy/deploys.db",
		LogFile:    "/var/log/kryodeploy/kryodeploy.log",
	})
	if err != nil {
		t.Fatalf("RenderSystemdService() error = %v", err)
	}

	for _, want := range []string{
		"ExecStart=/usr/local/bin/kryodeploy serve --config /etc/kryodeploy/kryodeploy.yaml",
		"User=deploy",
		"WorkingDirectory=/srv/kryonix",
		"ReadWritePaths=/srv/kryonix /var/lib/kryodeploy /var/log/kryodeploy",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("unit missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unit has unrendered placeholders:\n%s", got)
	}
}

func TestRender_MissingValues(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Render(NginxSite, TemplateData{"DOMAIN": "deploy.example.com"})
	if err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("Expected missing PORT error, got %v", err)
	}
}

func TestPlaceholders(t *testing.T) {
	got := placeholders("a {{B}} c {{A}} {{B}} {{unterminated")
	if strings.Join(got, ",") != "A,B" {
		t.Errorf("placeholders() = %v", got)
	}
}
