// Package contextsrc picks the reference material that accompanies each prompt:
// excerpts from the local document corpus, or filtered web search snippets.
package contextsrc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel is the context text used when no source produced anything.
const Sentinel = "Nenhuma fonte relevante encontrada."

type Source string

const (
	SourceCorpus Source = "corpus"
	SourceWeb    Source = "web"
	SourceNone   Source = "none"
)

type Policy string

const (
	PolicyCorpusFirst Policy = "corpus_first"
	PolicyWebOnly     Policy = "web_only"
	PolicyCorpusOnly  Policy = "corpus_only"
)

// ErrNoResults means every enabled source came back empty.
var ErrNoResults = errors.New("no relevant context found")

// SourceError wraps a failure of one context source.
type SourceError struct {
	Source Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Excerpt is the context resolved for one request.
type Excerpt struct {
	Text   string
	Source Source
}

// CorpusReader is satisfied by *Corpus.
type CorpusReader interface {
	Extract(ctx context.Context) (string, error)
}

type Options struct {
	Policy       Policy
	QuerySuffix  string
	Blocklist    []string
	KeepResults  int
	SnippetChars int
}

type Selector struct {
	corpus CorpusReader
	search Searcher
	opts   Options
}

func NewSelector(corpus CorpusReader, search Searcher, opts Options) *Selector {
	if opts.Policy == "" {
		opts.Policy = PolicyCorpusFirst
	}
	if opts.KeepResults <= 0 {
		opts.KeepResults = 3
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 300
	}
	blocklist := make([]string, 0, len(opts.Blocklist))
	for _, b := range opts.Blocklist {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			blocklist = append(blocklist, b)
		}
	}
	opts.Blocklist = blocklist
	return &Selector{corpus: corpus, search: search, opts: opts}
}

func (s *Selector) Policy() Policy {
	return s.opts.Policy
}

// Resolve returns the first non-empty source allowed by the policy.
// Any non-blank corpus text suppresses web search entirely under corpus_first.
func (s *Selector) Resolve(ctx context.Context, utterance string) (Excerpt, error) {
	var corpusErr error
	if s.opts.Policy != PolicyWebOnly && s.corpus != nil {
		text, err := s.corpus.Extract(ctx)
		if err != nil {
			corpusErr = &SourceError{Source: SourceCorpus, Err: err}
		} else if strings.TrimSpace(text) != "" {
			return Excerpt{Text: text, Source: SourceCorpus}, nil
		}
	}

	if s.opts.Policy == PolicyCorpusOnly || s.search == nil {
		if corpusErr != nil {
			return Excerpt{Source: SourceNone}, corpusErr
		}
		return Excerpt{Source: SourceNone}, ErrNoResults
	}

	results, err := s.search.Search(ctx, s.query(utterance))
	if err != nil {
		return Excerpt{Source: SourceNone}, &SourceError{Source: SourceWeb, Err: err}
	}
	text := s.render(results)
	if text == "" {
		return Excerpt{Source: SourceNone}, ErrNoResults
	}
	return Excerpt{Text: text, Source: SourceWeb}, nil
}

func (s *Selector) query(utterance string) string {
	suffix := strings.TrimSpace(s.opts.QuerySuffix)
	if suffix == "" {
		return utterance
	}
	return utterance + " " + suffix
}

func (s *Selector) render(results []Result) string {
	blocks := make([]string, 0, s.opts.KeepResults)
	for _, r := range results {
		if len(blocks) >= s.opts.KeepResults {
			break
		}
		if s.blocked(r.Link) {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("%sTítulo: %s\nLink: %s\nResumo: %s\n",
			priorityTag(r.Link), r.Title, r.Link, truncateRunes(r.Snippet, s.opts.SnippetChars)))
	}
	return strings.Join(blocks, "\n\n")
}

func (s *Selector) blocked(link string) bool {
	lower := strings.ToLower(link)
	for _, b := range s.opts.Blocklist {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}

// priorityTag matches case-sensitively; only the blocklist ignores case.
func priorityTag(link string) string {
	switch {
	case strings.Contains(link, ".pdf"):
		return "[PDF] "
	case strings.Contains(link, ".edu"):
		return "[ACADÊMICO] "
	default:
		return ""
	}
}

// ParsePolicy maps a configuration value onto a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyCorpusFirst, nil
	case PolicyCorpusFirst, PolicyWebOnly, PolicyCorpusOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown context policy %q", raw)
	}
}
