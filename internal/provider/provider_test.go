package provider

import (
	"reflect"
	"testing"
)

func TestCodexBuildArgv(t *testing.T) {
	c := NewCodex()
	argv, err := c.BuildArgv("do the thing", "/proj", map[string]string{"model": "gpt-5.1-codex"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"codex", "e", "--dangerously-bypass-approvals-and-sandbox", "--model", "gpt-5.1-codex", "do the thing"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("got %v, want %v", argv, want)
	}
}

func TestClaudeBuildArgvWithoutModel(t *testing.T) {
	c := NewClaudeCLI()
	argv, err := c.BuildArgv("prompt text", "/proj", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"claude", "-p", "prompt text", "--dangerously-skip-permissions"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("got %v, want %v", argv, want)
	}
}

func TestGeminiBuildArgv(t *testing.T) {
	g := NewGemini()
	argv, err := g.BuildArgv("prompt", "/proj", map[string]string{"model": "gemini-2.5-pro"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"gemini", "-p", "prompt", "--model", "gemini-2.5-pro", "--yolo", "--output-format", "json"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("got %v, want %v", argv, want)
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewBuiltinRegistry()
	if _, err := r.Resolve("does-not-exist"); err == nil {
		t.Fatal("expected error resolving unknown provider")
	}
	p, err := r.Resolve(NameCodex)
	if err != nil || p.Name() != NameCodex {
		t.Fatalf("expected codex provider, got %v err=%v", p, err)
	}
}
