// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the datfetch pipeline:
// manifest origins, scraped listing entries, remote inventory items,
// transfer tasks and their outcomes, configuration, and run errors.
package types

import "strings"

// ManifestOrigin is the provenance of a manifest, read once from its header.
type ManifestOrigin struct {
	// DisplayName is the header name with known postfixes removed
	// (e.g. "Nintendo - Game Boy").
	DisplayName string `json:"display_name" yaml:"display_name"`

	// ProvenanceLabel names the metadata provider (e.g. "Redump"). Empty when
	// the header URL is not a known provider.
	ProvenanceLabel string `json:"provenance_label,omitempty" yaml:"provenance_label,omitempty"`
}

// HasProvenance reports whether the manifest named a known provider.
func (o ManifestOrigin) HasProvenance() bool {
	return o.ProvenanceLabel != ""
}

// DirectoryEntry is one row scraped from an HTML listing.
type DirectoryEntry struct {
	// Title is the human label, usually the true file or directory name.
	Title string `json:"title" yaml:"title"`

	// Href is the relative link to a sub-listing or a file.
	Href string `json:"href" yaml:"href"`
}

// Collection is a selectable group of files under an origin listing.
type Collection = DirectoryEntry

// RemoteItem is a file-level DirectoryEntry keyed for matching against the
// wanted set.
type RemoteItem struct {
	// IdentityKey is the extension-stripped stem of DisplayFile.
	IdentityKey string `json:"identity_key" yaml:"identity_key"`

	// DisplayFile is the scraped filename, used as the local filename.
	DisplayFile string `json:"display_file" yaml:"display_file"`

	// Href is the link relative to the collection listing.
	Href string `json:"href" yaml:"href"`
}

// IdentityKey derives the key used to match manifest items against remote
// files: the last path element of name with its final extension removed.
// A leading dot does not count as an extension. Both sides of a
// reconciliation must use this function.
func IdentityKey(name string) string {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// IsPlainFileName reports whether name can be written directly inside a
// directory: non-empty, not "." or "..", and free of path separators and
// NUL bytes.
func IsPlainFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
