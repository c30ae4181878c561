// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// htmlReference describes one kind of asset an extension page links to.
type htmlReference struct {
	xpath string
	attr  string
}

var htmlReferences = []htmlReference{
	{xpath: "//script[@src]", attr: "src"},
	{xpath: "//link[@rel='stylesheet'][@href]", attr: "href"},
}

// buildHTML compiles an extension page: every local script and stylesheet it
// references is built with esbuild, the reference is rewritten to the emitted
// file and the page is written to the outdir.
func (b *Esbuild) buildHTML(absEntry string, req processor.Request) ([]string, []api.BuildContext, error) {
	sourceFile, err := os.Open(absEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open page %s: %w", req.Entry, err)
	}
	defer sourceFile.Close()

	utf8Reader, err := detectAndConvertToUTF8(sourceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert page %s to UTF-8: %w", req.Entry, err)
	}

	doc, err := htmlquery.Parse(utf8Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page %s: %w", req.Entry, err)
	}

	var (
		files    []string
		contexts []api.BuildContext
	)
	release := func() {
		for _, ctx := range contexts {
			ctx.Dispose()
		}
	}

	pageDir := path.Dir(req.Output)
	for _, ref := range htmlReferences {
		for _, node := range htmlquery.Find(doc, ref.xpath) {
			value := htmlquery.SelectAttr(node, ref.attr)
			if !isLocalReference(value) {
				continue
			}

			absRef := b.resolveReference(filepath.Dir(absEntry), value)
			relRef, err := filepath.Rel(b.root, absRef)
			if err != nil {
				release()
				return nil, nil, fmt.Errorf("failed to resolve %s referenced by %s: %w", value, req.Entry, err)
			}
			output := processor.OutputPath(relRef)

			emitted, ctx, err := b.buildScript(absRef, output, req)
			if err != nil {
				release()
				return nil, nil, err
			}
			if ctx != nil {
				contexts = append(contexts, ctx)
			}
			files = append(files, emitted...)

			setAttr(node, ref.attr, relativeURL(pageDir, output))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		release()
		return nil, nil, err
	}

	outFile := filepath.Join(b.outdir, filepath.FromSlash(req.Output))
	if err := os.MkdirAll(filepath.Dir(outFile), 0755); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create output dir for %s: %w", req.Output, err)
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0644); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to write page %s: %w", req.Output, err)
	}

	return append([]string{req.Output}, files...), contexts, nil
}

// resolveReference maps a page reference to an absolute source path.
// Root-relative references ("/src/popup.ts") are resolved against the project root.
func (b *Esbuild) resolveReference(pageDir, ref string) string {
	ref, _, _ = strings.Cut(ref, "?")
	ref, _, _ = strings.Cut(ref, "#")
	if strings.HasPrefix(ref, "/") {
		return filepath.Join(b.root, filepath.FromSlash(ref))
	}
	return filepath.Join(pageDir, filepath.FromSlash(ref))
}

// isLocalReference reports whether ref points into the extension package.
func isLocalReference(ref string) bool {
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"http:", "https:", "//", "data:", "blob:", "chrome-extension:", "moz-extension:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// relativeURL returns target relative to dir, both slash separated.
func relativeURL(dir, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}

func setAttr(node *html.Node, key, val string) {
	for i := range node.Attr {
		if node.Attr[i].Key == key {
			node.Attr[i].Val = val
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
}

func detectAndConvertToUTF8(r io.Reader) (io.Reader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	encoding, _, _ := charset.DetermineEncoding(b, "")

	utf8Reader := transform.NewReader(bytes.NewReader(b), encoding.NewDecoder())
	return utf8Reader, nil
}
