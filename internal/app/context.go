package app

import (
	"fmt"

	"github.com/ent0n29/lain/internal/config"
	"github.com/ent0n29/lain/internal/contextsrc"
)

func buildContextResolver(cfg config.Config) (*contextsrc.Selector, error) {
	policy, err := contextsrc.ParsePolicy(cfg.ContextPolicy)
	if err != nil {
		return nil, fmt.Errorf("context policy: %w", err)
	}

	var corpus contextsrc.CorpusReader
	if cfg.CorpusDir != "" {
		corpus = contextsrc.NewCorpus(cfg.CorpusDir, cfg.CorpusMaxPages, cfg.CorpusMaxChars)
	}
	search := contextsrc.NewDuckDuckGo(contextsrc.DuckDuckGoOptions{
		Region:     cfg.SearchRegion,
		SafeSearch: cfg.SearchSafeSearch,
		MaxResults: cfg.SearchMaxResults,
		Timeout:    cfg.SearchTimeout,
	})

	return contextsrc.NewSelector(corpus, search, contextsrc.Options{
		Policy:       policy,
		QuerySuffix:  cfg.SearchQuerySuffix,
		Blocklist:    cfg.SearchBlocklist,
		KeepResults:  cfg.SearchKeepResults,
		SnippetChars: cfg.SearchSnippetChars,
	}), nil
}
