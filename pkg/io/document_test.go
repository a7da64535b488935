package io

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/supplychain/pkg/publishers"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

var (
	u1   = publishers.User{ID: 1, Login: "alice", Name: "Alice"}
	u2   = publishers.User{ID: 2, Login: "bob"}
	team = publishers.Team{ID: 9, Org: "acme", Name: "core"}
	now  = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
)

func testReport() *publishers.Report {
	return &publishers.Report{Entries: []publishers.Entry{
		{
			Package:    publishers.Package{Name: "serde", Version: "1.0.0"},
			Publishers: publishers.NewSet(u1, u2),
			Source:     publishers.SourceSnapshot,
		},
		{
			Package:    publishers.Package{Name: "tokio"},
			Publishers: publishers.NewSet(u1, team),
			Source:     publishers.SourceMerged,
			Failure:    &publishers.Failure{Kind: publishers.FailureTeamExpansion, Message: "team acme/core: boom"},
		},
		{
			Package:    publishers.Package{Name: "ghost"},
			Publishers: &publishers.Set{},
			Source:     publishers.SourceNone,
			Failure:    &publishers.Failure{Kind: publishers.FailureNotFound, Message: "crate ghost: not_found"},
		},
	}}
}

func TestNewDocument(t *testing.T) {
	snap := &snapshot.Snapshot{Generation: "gen-1", AcquiredAt: now.Add(-time.Hour)}
	doc := NewDocument(testReport(), snap, now)

	if doc.Snapshot == nil || doc.Snapshot.Generation != "gen-1" {
		t.Errorf("Snapshot = %+v", doc.Snapshot)
	}
	if len(doc.Crates) != 3 || doc.Crates[0].Name != "serde" || doc.Crates[2].Name != "ghost" {
		t.Fatalf("Crates = %+v", doc.Crates)
	}
	if got := doc.Crates[1].Publishers; len(got) != 2 || got[1].Kind != publishers.KindTeam || got[1].Org != "acme" {
		t.Errorf("tokio publishers = %+v", got)
	}
	if doc.Crates[2].Publishers == nil || len(doc.Crates[2].Publishers) != 0 {
		t.Errorf("ghost publishers = %#v, want empty non-nil", doc.Crates[2].Publishers)
	}

	if len(doc.Publishers) != 3 {
		t.Fatalf("Publishers = %+v", doc.Publishers)
	}
	top := doc.Publishers[0]
	if top.Login != "alice" || strings.Join(top.Crates, ",") != "serde,tokio" {
		t.Errorf("top publisher = %+v", top)
	}
}

func TestWriteJSON(t *testing.T) {
	doc := NewDocument(testReport(), nil, now)

	var buf bytes.Buffer
	if err := WriteJSON(doc, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`"generated_at": "2026-01-02T15:04:05Z"`,
		`"kind": "not_found"`,
		`"publishers": []`,
		`"source": "merged"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"snapshot": {`) {
		t.Error("snapshot should be omitted when nil")
	}

	back, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(back.Crates) != 3 || back.Crates[1].Failure.Kind != publishers.FailureTeamExpansion {
		t.Errorf("decoded = %+v", back.Crates)
	}
	if back.Publishers[0].Login != "alice" {
		t.Errorf("embedded account not flattened: %+v", back.Publishers[0])
	}
}

func TestWriteYAML(t *testing.T) {
	doc := NewDocument(testReport(), nil, now)

	var buf bytes.Buffer
	if err := WriteYAML(doc, &buf); err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	pubs, ok := decoded["publishers"].([]any)
	if !ok || len(pubs) != 3 {
		t.Fatalf("publishers = %#v", decoded["publishers"])
	}
	first := pubs[0].(map[string]any)
	if first["login"] != "alice" {
		t.Errorf("inline account fields missing: %#v", first)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "json": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := Export(NewDocument(testReport(), nil, now), FormatYAML, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("name: serde")) {
		t.Errorf("unexpected file contents:\n%s", data)
	}

	err = Export(NewDocument(testReport(), nil, now), FormatJSON, filepath.Join(t.TempDir(), "missing", "x.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not exist", err)
	}
}

func TestReadJSONMissingCrates(t *testing.T) {
	if _, err := ReadJSON(strings.NewReader(`{"generated_at":"2026-01-02T15:04:05Z"}`)); err == nil {
		t.Error("expected error")
	}
}
