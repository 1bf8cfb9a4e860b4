// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog locates the remote collection that matches a manifest.
// Resolution runs in two stages, origin then collection, and each stage
// either picks an entry automatically or falls back to a Chooser.
package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/datfetch/internal/ctxlog"
	"github.com/pdiddy/datfetch/internal/term"
	"github.com/pdiddy/datfetch/pkg/types"
)

// Lister fetches one directory listing relative to the remote root.
type Lister interface {
	FetchListing(ctx context.Context, pathSuffix string) ([]types.DirectoryEntry, error)
}

// Resolution is the outcome of both stages. It is fixed for the rest of
// the run.
type Resolution struct {
	OriginHref     string `json:"origin_href" yaml:"origin_href"`
	CollectionHref string `json:"collection_href" yaml:"collection_href"`
}

// Path returns the collection listing path relative to the remote root.
func (r Resolution) Path() string {
	return r.OriginHref + r.CollectionHref
}

// Resolver resolves a manifest origin to a collection path.
type Resolver struct {
	Lister  Lister
	Chooser Chooser

	// ForceOrigin and ForceCollection make the corresponding stage ask the
	// Chooser even when an automatic match exists.
	ForceOrigin     bool
	ForceCollection bool

	// Out receives notices about fallbacks. Nil discards them.
	Out io.Writer
}

// Resolve runs the origin stage, then the collection stage beneath the
// chosen origin. Listing failures are returned as FetchFailed errors and
// end the run.
func (r *Resolver) Resolve(ctx context.Context, origin types.ManifestOrigin) (Resolution, error) {
	originHref, err := r.ResolveOrigin(ctx, origin.ProvenanceLabel)
	if err != nil {
		return Resolution{}, err
	}
	collectionHref, err := r.ResolveCollection(ctx, originHref, origin.DisplayName)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{OriginHref: originHref, CollectionHref: collectionHref}
	ctxlog.FromContext(ctx).Debug("collection resolved", "path", res.Path())
	return res, nil
}

// ResolveOrigin picks the top-level provider directory. With a non-empty
// label the first root entry whose title contains it is used, unless
// ForceOrigin is set. Otherwise every root entry is offered to the Chooser.
func (r *Resolver) ResolveOrigin(ctx context.Context, label string) (string, error) {
	entries, err := r.Lister.FetchListing(ctx, "")
	if err != nil {
		return "", fmt.Errorf("fetching root listing: %w", err)
	}

	if label != "" && !r.ForceOrigin {
		for _, e := range entries {
			if strings.Contains(e.Title, label) {
				return e.Href, nil
			}
		}
	}

	r.notice("Catalog for DAT not automatically found, please select from the following:")
	return r.choose(ctx, "Input selected catalog number", entries)
}

// ResolveCollection picks the collection beneath originHref. Entries whose
// title contains displayName form the match-set. A single match is used
// unless ForceCollection is set. Otherwise the Chooser gets the match-set
// when it has several entries and the stage is not forced, or the full
// listing in every other case.
func (r *Resolver) ResolveCollection(ctx context.Context, originHref, displayName string) (string, error) {
	entries, err := r.Lister.FetchListing(ctx, originHref)
	if err != nil {
		return "", fmt.Errorf("fetching origin listing: %w", err)
	}

	matches := MatchCollections(entries, displayName)
	if len(matches) == 1 && !r.ForceCollection {
		return matches[0].Href, nil
	}

	r.notice("Collection for DAT not automatically found, please select from the following:")
	options := entries
	if len(matches) > 1 && !r.ForceCollection {
		options = matches
	}
	return r.choose(ctx, "Input selected collection number", options)
}

// MatchCollections returns the entries whose title contains name. The
// comparison is case-sensitive; an empty name matches nothing.
func MatchCollections(entries []types.Collection, name string) []types.Collection {
	if name == "" {
		return nil
	}
	var out []types.Collection
	for _, e := range entries {
		if strings.Contains(e.Title, name) {
			out = append(out, e)
		}
	}
	return out
}

func (r *Resolver) choose(ctx context.Context, prompt string, entries []types.DirectoryEntry) (string, error) {
	if len(entries) == 0 {
		return "", types.Errorf(types.KindResolutionFailed, prompt, "listing is empty")
	}
	if r.Chooser == nil {
		return "", types.Errorf(types.KindResolutionFailed, prompt, "no automatic match and no chooser configured")
	}

	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}

	idx, err := r.Chooser.Choose(ctx, prompt, titles)
	if err != nil {
		return "", &types.Error{Kind: types.KindResolutionFailed, Op: prompt, Err: err}
	}
	if idx < 0 || idx >= len(entries) {
		return "", types.Errorf(types.KindResolutionFailed, prompt, "choice %d out of range", idx+1)
	}
	return entries[idx].Href, nil
}

func (r *Resolver) notice(msg string) {
	if r.Out == nil {
		return
	}
	fmt.Fprintln(r.Out, term.Notice.Render(msg))
}
