// Package search ranks roster check-ins against a free-text query over
// developer names and skills.
//
// The index is immutable after construction and safe for concurrent use.
// Scoring is Jaccard similarity between the query token set Q and a
// check-in's token set D: score = |Q ∩ D| / |Q ∪ D|. Ties are broken by
// name, then id, so results are deterministic for a given roster.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// DefaultK is the result cap used when TopK is called with k <= 0.
const DefaultK = 20

// Result is a ranked check-in with its similarity score.
type Result struct {
	CheckIn domain.CheckIn `json:"checkin"`
	Score   float64        `json:"score"`
}

// Index is implemented by roster search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords  map[string]struct{}
	maxDocs    int
	skillsOnly bool
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps the number of indexed check-ins; non-positive is ignored.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithSkillsOnly leaves names out of the indexed text.
func WithSkillsOnly() Option {
	return func(c *config) { c.skillsOnly = true }
}

// ----------------------------------------------------------------------------
// Index

type doc struct {
	checkIn domain.CheckIn
	tokens  map[string]struct{}
	name    string
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex indexes checkIns. Check-ins with no indexable text are skipped.
func NewIndex(checkIns []domain.CheckIn, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(checkIns))
	for _, c := range checkIns {
		text := strings.Join(c.Skills, " ")
		if !cfg.skillsOnly {
			text = c.Name + " " + text
		}
		toks := tokenize(text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{checkIn: c, tokens: toks, name: strings.ToLower(c.Name)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// Len returns the number of indexed check-ins.
func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching check-ins. Check-ins sharing no token
// with the query are never returned.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		d     *doc
		score float64
	}
	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for n := range i.docs {
		d := &i.docs[n]
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		buf = append(buf, scored{d: d, score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].d.name != buf[b].d.name {
			return buf[a].d.name < buf[b].d.name
		}
		return buf[a].d.checkIn.ID < buf[b].d.checkIn.ID
	})

	k = min(k, len(buf))
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{CheckIn: buf[n].d.checkIn, Score: buf[n].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

// wordRE keeps the punctuation common in technology names (c++, c#, node.js).
var wordRE = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}+#.]*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimRight(w, ".")
		if w == "" {
			continue
		}
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
