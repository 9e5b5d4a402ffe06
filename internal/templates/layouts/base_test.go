package layouts

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBaseRendersShell(t *testing.T) {
	var buf bytes.Buffer
	if err := Base("Courts & Buddies", Theme{PrimaryColor: "#123456"}, AppShell()).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<!doctype html>",
		"<title>Courts &amp; Buddies</title>",
		`<link rel="stylesheet" href="/static/css/main.css">`,
		"--theme-primary:#123456",
		`<div id="app"></div>`,
		"</body></html>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestBaseWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Base("Empty", DefaultTheme(), nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "<body></body></html>") {
		t.Fatalf("unexpected document %s", buf.String())
	}
}

func TestBaseStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := Base("Courts", DefaultTheme(), AppShell()).Render(ctx, &buf); err == nil {
		t.Fatal("expected cancelled context to abort rendering")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
}

func TestThemeFallsBackOnInvalidColors(t *testing.T) {
	vars := getThemeCSSVars(Theme{PrimaryColor: "red;}body{display:none", AccentColor: "#abc"})
	defaults := DefaultTheme()

	if !strings.Contains(vars, "--theme-primary:"+defaults.PrimaryColor) {
		t.Fatalf("expected invalid primary to fall back, got %s", vars)
	}
	if !strings.Contains(vars, "--theme-accent:#abc") {
		t.Fatalf("expected short hex accent to be kept, got %s", vars)
	}
	if !strings.Contains(vars, "--theme-secondary:"+defaults.SecondaryColor) {
		t.Fatalf("expected empty secondary to fall back, got %s", vars)
	}
}
