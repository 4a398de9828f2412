package contextsrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const extractConcurrency = 4

// Corpus reads excerpts from a local directory of PDF and plain-text documents.
type Corpus struct {
	dir      string
	maxPages int
	maxChars int
}

func NewCorpus(dir string, maxPages, maxChars int) *Corpus {
	return &Corpus{dir: dir, maxPages: maxPages, maxChars: maxChars}
}

func (c *Corpus) Dir() string {
	return c.dir
}

// Extract returns the per-document excerpts joined in file-name order.
// A missing directory yields an empty excerpt; unreadable documents are skipped.
func (c *Corpus) Extract(ctx context.Context) (string, error) {
	paths, err := c.documents()
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", nil
	}

	parts := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := c.readDocument(path)
			if err != nil {
				log.WithFields(log.Fields{"document": filepath.Base(path), "err": err}).Warn("corpus document skipped")
				return nil
			}
			parts[i] = truncateRunes(text, c.maxChars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

func (c *Corpus) documents() ([]string, error) {
	if strings.TrimSpace(c.dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf", ".txt", ".md":
			paths = append(paths, filepath.Join(c.dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Corpus) readDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path, c.maxPages)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func extractPDF(path string, maxPages int) (text string, err error) {
	// The pdf reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse %s: %v", filepath.Base(path), r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
