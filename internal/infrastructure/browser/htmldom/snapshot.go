package htmldom

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html"

	"context-injector/internal/application/port/output"
)

var _ output.Snapshotter = (*Document)(nil)

type CleanConfig struct {
	TagsToRemove  []string
	AttrsToRemove []string
	// KeepAttrs survive the data-/aria-/on* prefix filter; selectors rely on them.
	KeepAttrs     []string
	MaxOutputSize int
}

var DefaultCleanConfig = CleanConfig{
	TagsToRemove: []string{
		"script", "style", "noscript", "svg", "iframe",
		"link", "meta", "head", "title",
	},
	AttrsToRemove: []string{
		"style", "srcset", "sizes", "loading", "decoding", "fetchpriority", "tabindex",
	},
	KeepAttrs:     []string{"data-testid", "aria-label", "aria-disabled"},
	MaxOutputSize: 130_000,
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Snapshot writes the cleaned body of the document to the snapshot directory
// and returns the file path.
func (d *Document) Snapshot(ctx context.Context, reason string) (string, error) {
	d.mu.Lock()
	dir := d.snapshotDir
	d.mu.Unlock()
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.html", time.Now().Format("2006-01-02_15-04-05.000"), unsafeName.ReplaceAllString(reason, "_"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(CleanHTML(d.HTML(), &DefaultCleanConfig)), 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// SetSnapshotDir changes where Snapshot writes; the default is ./log.
func (d *Document) SetSnapshotDir(dir string) {
	d.mu.Lock()
	d.snapshotDir = dir
	d.mu.Unlock()
}

// CleanHTML strips a page down to the structure that selector strategies
// match against.
func CleanHTML(rawHTML string, cfg *CleanConfig) string {
	if cfg == nil {
		cfg = &DefaultCleanConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	body := findBody(doc)
	if body == nil {
		return rawHTML
	}

	cleanNode(body, cfg)

	var sb strings.Builder
	_ = html.Render(&sb, body)
	out := sb.String()
	if cfg.MaxOutputSize > 0 && len(out) > cfg.MaxOutputSize {
		out = out[:cfg.MaxOutputSize] + "\n<!-- snapshot truncated -->"
	}
	return out
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func cleanNode(n *html.Node, cfg *CleanConfig) {
	if n.Type == html.CommentNode {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	if slices.Contains(cfg.TagsToRemove, n.Data) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}

	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !dropAttr(a.Key, cfg) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, cfg)
		c = next
	}
}

func dropAttr(key string, cfg *CleanConfig) bool {
	if slices.Contains(cfg.KeepAttrs, key) {
		return false
	}
	if slices.Contains(cfg.AttrsToRemove, key) {
		return true
	}
	return strings.HasPrefix(key, "data-") || strings.HasPrefix(key, "aria-") || strings.HasPrefix(key, "on")
}
