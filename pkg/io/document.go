package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/supplychain/pkg/publishers"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

// Document is the serialized form of a report.
type Document struct {
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	Snapshot    *SnapshotInfo  `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Crates      []CrateEntry   `json:"crates" yaml:"crates"`
	Publishers  []PublisherRow `json:"publishers" yaml:"publishers"`
}

// SnapshotInfo identifies the registry dump the report was built from.
type SnapshotInfo struct {
	Generation string    `json:"generation" yaml:"generation"`
	AcquiredAt time.Time `json:"acquired_at" yaml:"acquired_at"`
}

// CrateEntry is one requested crate.
type CrateEntry struct {
	Name       string              `json:"name" yaml:"name"`
	Version    string              `json:"version,omitempty" yaml:"version,omitempty"`
	Source     publishers.Source   `json:"source" yaml:"source"`
	Publishers []Account           `json:"publishers" yaml:"publishers"`
	Failure    *publishers.Failure `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Account is a user or an unexpanded team.
type Account struct {
	Kind  publishers.AccountKind `json:"kind" yaml:"kind"`
	ID    int64                  `json:"id" yaml:"id"`
	Login string                 `json:"login,omitempty" yaml:"login,omitempty"`
	Name  string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Org   string                 `json:"org,omitempty" yaml:"org,omitempty"`
}

// PublisherRow lists the crates one account can publish.
type PublisherRow struct {
	Account `yaml:",inline"`
	Crates  []string `json:"crates" yaml:"crates"`
}

// NewDocument flattens report. snap may be nil when the report was built
// without a snapshot.
func NewDocument(report *publishers.Report, snap *snapshot.Snapshot, now time.Time) *Document {
	doc := &Document{
		GeneratedAt: now.UTC(),
		Crates:      make([]CrateEntry, 0, len(report.Entries)),
	}
	if snap != nil {
		doc.Snapshot = &SnapshotInfo{Generation: snap.Generation, AcquiredAt: snap.AcquiredAt.UTC()}
	}

	for _, e := range report.Entries {
		entry := CrateEntry{
			Name:       e.Package.Name,
			Version:    e.Package.Version,
			Source:     e.Source,
			Publishers: []Account{},
			Failure:    e.Failure,
		}
		for _, a := range e.Publishers.Accounts() {
			entry.Publishers = append(entry.Publishers, accountOf(a))
		}
		doc.Crates = append(doc.Crates, entry)
	}

	byPub := report.ByPublisher()
	doc.Publishers = make([]PublisherRow, 0, len(byPub))
	for _, pe := range byPub {
		doc.Publishers = append(doc.Publishers, PublisherRow{Account: accountOf(pe.Account), Crates: pe.Packages})
	}
	return doc
}

func accountOf(a publishers.Account) Account {
	switch v := a.(type) {
	case publishers.User:
		return Account{Kind: publishers.KindUser, ID: v.ID, Login: v.Login, Name: v.Name}
	case publishers.Team:
		return Account{Kind: publishers.KindTeam, ID: v.ID, Org: v.Org, Name: v.Name}
	}
	id := a.AccountID()
	return Account{Kind: id.Kind, ID: id.ID, Name: a.DisplayName()}
}

// Format names an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

// Write encodes doc in format f.
func Write(doc *Document, f Format, w io.Writer) error {
	if f == FormatYAML {
		return WriteYAML(doc, w)
	}
	return WriteJSON(doc, w)
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(doc *Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML encodes doc as YAML.
func WriteYAML(doc *Document, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return enc.Close()
}

// Export writes doc to a file at path.
func Export(doc *Document, f Format, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(doc, f, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadJSON decodes a document previously written by [WriteJSON].
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.Crates == nil {
		return nil, fmt.Errorf("decode: missing crates")
	}
	return &doc, nil
}
