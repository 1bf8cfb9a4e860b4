// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package manifest reads DAT manifests: XML documents whose root holds a
// header (name, provider URL) and game nodes, each listing rom nodes with a
// name attribute. It derives the wanted identity set and the manifest
// origin used to locate the matching remote collection.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/datfetch/pkg/types"
)

// providers maps the header URL of known metadata providers to the label
// used for their directory on the file server. Lookup is exact.
var providers = map[string]string{
	"https://www.no-intro.org": "No-Intro",
	"http://redump.org/":       "Redump",
}

// postfixes are removed from the header name before it is matched against
// collection titles.
var postfixes = []string{" (Retool)"}

// Document is a decoded DAT manifest.
type Document struct {
	XMLName xml.Name
	Headers []Header `xml:"header"`
	Games   []Game   `xml:"game"`
}

// Header is the manifest header block.
type Header struct {
	Name string `xml:"name"`
	URL  string `xml:"url"`
}

// Game is an item group.
type Game struct {
	Name string `xml:"name,attr"`
	Roms []Rom  `xml:"rom"`
}

// Rom is a single item. Name is empty when the attribute is missing.
type Rom struct {
	Name string `xml:"name,attr"`
}

// Parse decodes a manifest. The whole input must be well-formed XML with a
// single root element; anything else yields a ManifestInvalid error.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &types.Error{Kind: types.KindManifestInvalid, Op: "parsing manifest", Err: err}
	}

	// Decode stops at the end of the root element; keep reading so that
	// malformed trailing content is still reported.
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &types.Error{Kind: types.KindManifestInvalid, Op: "parsing manifest", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return nil, types.Errorf(types.KindManifestInvalid, "parsing manifest", "multiple root elements")
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, types.Errorf(types.KindManifestInvalid, "parsing manifest", "text after root element")
			}
		}
	}
	return &doc, nil
}

// ParseFile opens and parses the manifest at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.Error{Kind: types.KindManifestInvalid, Op: "opening manifest", Err: err}
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ExtractWantedIdentities walks games then roms in document order and
// returns the set of distinct non-empty rom stems. Roms without a name are
// skipped.
func ExtractWantedIdentities(doc *Document) *WantedSet {
	set := NewWantedSet()
	if doc == nil {
		return set
	}
	for _, g := range doc.Games {
		for _, r := range g.Roms {
			if r.Name == "" {
				continue
			}
			set.Add(types.IdentityKey(r.Name))
		}
	}
	return set
}

// ExtractOriginMetadata reads the first header. The bool result is false
// when the manifest has no header; the origin is then empty, which callers
// treat as "unknown" rather than an error.
func ExtractOriginMetadata(doc *Document) (types.ManifestOrigin, bool) {
	if doc == nil || len(doc.Headers) == 0 {
		return types.ManifestOrigin{}, false
	}
	h := doc.Headers[0]

	name := strings.TrimSpace(h.Name)
	for _, fix := range postfixes {
		name = strings.ReplaceAll(name, fix, "")
	}

	return types.ManifestOrigin{
		DisplayName:     name,
		ProvenanceLabel: ProviderLabel(strings.TrimSpace(h.URL)),
	}, true
}

// ProviderLabel returns the provider label for a header URL, or "" when the
// URL is not a known provider.
func ProviderLabel(url string) string {
	return providers[url]
}
