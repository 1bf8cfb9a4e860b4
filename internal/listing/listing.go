// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package listing fetches and parses the HTML directory pages of the
// remote file index. A listing is a table inside the element with
// id="list"; each row links to a sub-listing or a file.
package listing

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pdiddy/datfetch/internal/ctxlog"
	"github.com/pdiddy/datfetch/internal/httputil"
	"github.com/pdiddy/datfetch/pkg/types"
)

// DefaultBaseURL is the root of the public file index.
const DefaultBaseURL = "https://myrient.erista.me/files/"

// containerID is the id of the element wrapping the listing table.
const containerID = "list"

// Client fetches listings below a single base address. It holds no
// per-call state and is safe to share once constructed.
type Client struct {
	http *http.Client
	cfg  types.HTTPConfig
}

// NewClient returns a Client using httpClient for transport and cfg for the
// base address and request headers.
func NewClient(httpClient *http.Client, cfg types.HTTPConfig) *Client {
	return &Client{http: httpClient, cfg: cfg}
}

// URL returns the absolute address of pathSuffix.
func (c *Client) URL(pathSuffix string) string {
	return c.cfg.BaseURL + pathSuffix
}

// FetchListing GETs the listing at base+pathSuffix and returns its entries
// in page order. Every call hits the network.
func (c *Client) FetchListing(ctx context.Context, pathSuffix string) ([]types.DirectoryEntry, error) {
	url := c.URL(pathSuffix)

	req, err := httputil.NewRequest(ctx, http.MethodGet, url, c.cfg)
	if err != nil {
		return nil, &types.Error{Kind: types.KindFetchFailed, Op: url, Err: err}
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, &types.Error{Kind: types.KindFetchFailed, Op: url, Err: err}
	}
	defer httputil.DrainClose(resp)

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, types.Errorf(types.KindFetchFailed, url, "HTTP %d", resp.StatusCode)
	}

	entries, err := ParseListing(resp.Body)
	if err != nil {
		return nil, &types.Error{Kind: types.KindFetchFailed, Op: url, Err: err}
	}
	ctxlog.FromContext(ctx).Debug("listing fetched", "url", url, "entries", len(entries))
	return entries, nil
}

// FetchInventory fetches a collection listing and keys its entries by
// identity key.
func (c *Client) FetchInventory(ctx context.Context, pathSuffix string) (map[string]types.RemoteItem, error) {
	entries, err := c.FetchListing(ctx, pathSuffix)
	if err != nil {
		return nil, err
	}
	return Inventory(entries), nil
}

// ParseListing extracts one DirectoryEntry per table row under the listing
// container. In each row only the first anchor counts; rows whose first
// anchor lacks a title or href (column headers, the parent link) are
// skipped.
func ParseListing(r io.Reader) ([]types.DirectoryEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing listing HTML: %w", err)
	}

	container := findByID(doc, containerID)
	if container == nil {
		return nil, nil
	}

	var entries []types.DirectoryEntry
	walk(container, func(n *html.Node) bool {
		if n.DataAtom != atom.Tr {
			return true
		}
		if a := firstAnchor(n); a != nil {
			title, okTitle := attr(a, "title")
			href, okHref := attr(a, "href")
			if okTitle && okHref {
				entries = append(entries, types.DirectoryEntry{Title: title, Href: href})
			}
		}
		return false
	})
	return entries, nil
}

// Inventory keys file entries by identity key. When two entries share a key
// the later one wins. Entries whose title is not a plain file name are
// dropped, since their files could not be written inside the output
// directory.
func Inventory(entries []types.DirectoryEntry) map[string]types.RemoteItem {
	inv := make(map[string]types.RemoteItem, len(entries))
	for _, e := range entries {
		if !types.IsPlainFileName(e.Title) {
			continue
		}
		key := types.IdentityKey(e.Title)
		inv[key] = types.RemoteItem{
			IdentityKey: key,
			DisplayFile: e.Title,
			Href:        e.Href,
		}
	}
	return inv
}

// walk visits n and its descendants depth-first in document order. fn
// returns false to skip the children of the node it was given.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if v, ok := attr(n, "id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func firstAnchor(row *html.Node) *html.Node {
	var found *html.Node
	walk(row, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.DataAtom == atom.A {
			found = n
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
