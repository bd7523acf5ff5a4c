package retrieval

import "math"

// BM25 weighting constants, the standard defaults (Robertson/Sparck
// Jones) also used by most full-text search engines.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Scorer is an in-process term-frequency scorer over a fixed
// candidate set, standing in for the trigram-similarity SQL the teacher
// issues against Postgres directly — the core keeps no hard dependency
// on a trigram extension being installed, so keyword scoring happens
// here over whatever candidates the ANN/linear-scan stage already
// produced.
type BM25Scorer struct {
	docs     map[string][]string // doc id -> tokens
	docFreq  map[string]int      // token -> number of docs containing it
	avgDocLen float64
}

// NewBM25Scorer indexes docs (memory id -> content) for one query's
// keyword scoring pass. It is cheap to build because it only ever runs
// over the bounded candidate set a single GetRelevant call already
// fetched, never the full corpus.
func NewBM25Scorer(docs map[string]string) *BM25Scorer {
	s := &BM25Scorer{
		docs:    make(map[string][]string, len(docs)),
		docFreq: make(map[string]int),
	}
	var totalLen int
	for id, text := range docs {
		toks := tokenize(text)
		s.docs[id] = toks
		totalLen += len(toks)
		seen := make(map[string]struct{})
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			s.docFreq[t]++
		}
	}
	if len(docs) > 0 {
		s.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return s
}

// Score returns the BM25 score of docID against query. Query terms that
// never appear in the candidate set contribute 0 (their IDF would be
// undefined over an empty collection).
func (s *BM25Scorer) Score(docID, query string) float64 {
	toks, ok := s.docs[docID]
	if !ok || s.avgDocLen == 0 {
		return 0
	}
	termFreq := make(map[string]int, len(toks))
	for _, t := range toks {
		termFreq[t]++
	}
	docLen := float64(len(toks))
	n := float64(len(s.docs))

	var score float64
	for _, qt := range tokenize(query) {
		df, ok := s.docFreq[qt]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		tf := float64(termFreq[qt])
		denom := tf + bm25K1*(1-bm25B+bm25B*docLen/s.avgDocLen)
		if denom == 0 {
			continue
		}
		score += idf * (tf * (bm25K1 + 1)) / denom
	}
	return score
}
