package provider

import (
	"net/url"
	"testing"
)

func TestTagFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://github.com/F3T1W/BoostyMilker/archive/refs/tags/v1.0.3.tar.gz", "v1.0.3", false},
		{"https://github.com/F3T1W/BoostyMilker/archive/v1.0.1.tar.gz", "v1.0.1", false},
		{"https://codeload.github.com/F3T1W/BoostyMilker/tar.gz/refs/tags/v1.0.0", "v1.0.0", false},
		{"https://github.com/F3T1W/BoostyMilker/archive/refs/tags/1.2.0-rc.1.tar.gz", "1.2.0-rc.1", false},
		{"https://github.com/F3T1W/BoostyMilker", "", true},
		{"https://downloads.example.com/tool/boosty-milker-v2.1.0.tar.xz", "v2.1.0", false},
		{"https://downloads.example.com/tool/latest.tar.gz", "", true},
		{"not a url", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := TagFromURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TagFromURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TagFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestForURLSelectsGitHub(t *testing.T) {
	p, u, err := ForURL("https://github.com/F3T1W/BoostyMilker")
	if err != nil {
		t.Fatalf("ForURL failed: %v", err)
	}
	if p.Name() != "github" {
		t.Fatalf("expected github provider, got %s", p.Name())
	}
	repo, err := p.Repository(u)
	if err != nil {
		t.Fatalf("Repository failed: %v", err)
	}
	if repo != "F3T1W/BoostyMilker" {
		t.Errorf("Repository = %q", repo)
	}
}

func TestGitHubURLs(t *testing.T) {
	g, ok := Get("github")
	if !ok {
		t.Fatal("github provider not registered")
	}
	if got := g.ArchiveURL("F3T1W/BoostyMilker", "v1.0.3"); got != "https://github.com/F3T1W/BoostyMilker/archive/refs/tags/v1.0.3.tar.gz" {
		t.Errorf("ArchiveURL = %s", got)
	}
	if got := g.AssetURL("F3T1W/BoostyMilker", "v1.0.3", "boosty-milker-linux"); got != "https://github.com/F3T1W/BoostyMilker/releases/download/v1.0.3/boosty-milker-linux" {
		t.Errorf("AssetURL = %s", got)
	}
	if got := g.HomepageURL("F3T1W/BoostyMilker"); got != "https://github.com/F3T1W/BoostyMilker" {
		t.Errorf("HomepageURL = %s", got)
	}
}

func TestGitHubRepositoryRejectsShortPaths(t *testing.T) {
	g := &GitHub{Host: "github.com"}
	u, _ := url.Parse("https://github.com/F3T1W")
	if _, err := g.Repository(u); err == nil {
		t.Error("expected error for URL without repository")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) < 2 || names[0] != "generic" || names[1] != "github" {
		t.Errorf("unexpected provider names %v", names)
	}
}
