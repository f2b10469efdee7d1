// Package searcher implements the read path: it embeds a query, asks the
// vector store for the nearest chunks and assembles them into context for
// downstream LLM work.
//
// Search serves ad-hoc queries and can cache results in an LRU keyed by the
// request. GetRelevantContext formats every match as
//
//	## <file path> (similarity: 0.87)
//	```
//	<chunk content>
//	```
//
// and packs the blocks greedily in similarity order until the next one would
// exceed the token budget (see PackBlocks). GetContextWithPatterns spends 70%
// of the budget on code and prepends learned patterns that share a word with
// the query:
//
//	s := searcher.NewSearcher(store, emb)
//	res, err := s.GetContextWithPatterns(ctx, "billing", "add invoice rounding", 2000)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Context)
//
// Embedding failures are reported as embedder.ErrProviderFailed and store
// failures as ErrStoreFailed.
package searcher
