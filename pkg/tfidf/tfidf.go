// Package tfidf implements a TF-IDF vectorizer fitted over a fixed corpus of
// short documents, together with cosine similarity ranking of a query
// against that corpus.
//
// A fitted Model is immutable: Transform and Similarities never add query
// terms to the vocabulary or alter the IDF table, so a single Model can be
// shared by concurrent readers.
package tfidf

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

var (
	// ErrEmptyCorpus is returned by Fit when no documents are supplied.
	ErrEmptyCorpus = errors.New("tfidf: empty corpus")

	// ErrDimensionMismatch is returned by Cosine for vectors of different length.
	ErrDimensionMismatch = errors.New("tfidf: vector dimension mismatch")
)

// Model is a TF-IDF vector space fitted over a corpus.
type Model struct {
	vocabulary map[string]int
	terms      []string
	idf        []float64
	docs       [][]float64
	norms      []float64
}

// Tokenize lower-cases text and splits it on every rune that is neither a
// letter nor a digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Fit builds the vocabulary and IDF table from corpus and vectorizes every
// document. Documents may be empty; they produce zero vectors.
//
// IDF uses the smoothed form idf(t) = ln((1+N)/(1+df(t))) + 1, which is
// strictly positive, so a term present in every document still carries
// weight.
func Fit(corpus []string) (*Model, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}

	tokenized := make([][]string, len(corpus))
	df := make(map[string]int)
	for i, text := range corpus {
		tokens := Tokenize(text)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	// Stable vocabulary order keeps vectors reproducible across runs.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m := &Model{
		vocabulary: make(map[string]int, len(terms)),
		terms:      terms,
		idf:        make([]float64, len(terms)),
		docs:       make([][]float64, len(corpus)),
		norms:      make([]float64, len(corpus)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		m.vocabulary[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	for i, tokens := range tokenized {
		m.docs[i] = m.vectorize(tokens)
		m.norms[i] = Norm(m.docs[i])
	}
	return m, nil
}

// vectorize weights raw term counts by IDF. Tokens outside the vocabulary
// are ignored.
func (m *Model) vectorize(tokens []string) []float64 {
	vec := make([]float64, len(m.terms))
	for _, tok := range tokens {
		if idx, ok := m.vocabulary[tok]; ok {
			vec[idx]++
		}
	}
	for idx, count := range vec {
		if count > 0 {
			vec[idx] = count * m.idf[idx]
		}
	}
	return vec
}

// Transform vectorizes text in the fitted space.
func (m *Model) Transform(text string) []float64 {
	return m.vectorize(Tokenize(text))
}

// Len returns the number of corpus documents.
func (m *Model) Len() int { return len(m.docs) }

// Dimension returns the vocabulary size.
func (m *Model) Dimension() int { return len(m.terms) }

// Vocabulary returns a copy of the vocabulary in vector index order.
func (m *Model) Vocabulary() []string {
	out := make([]string, len(m.terms))
	copy(out, m.terms)
	return out
}

// IDF returns the inverse document frequency of term.
func (m *Model) IDF(term string) (float64, bool) {
	idx, ok := m.vocabulary[term]
	if !ok {
		return 0, false
	}
	return m.idf[idx], true
}

// DocumentVector returns a copy of the vector of document i.
func (m *Model) DocumentVector(i int) []float64 {
	out := make([]float64, len(m.docs[i]))
	copy(out, m.docs[i])
	return out
}

// Similarities returns the cosine similarity between query and every
// corpus document, in corpus order.
func (m *Model) Similarities(query string) []float64 {
	q := m.Transform(query)
	qn := Norm(q)
	out := make([]float64, len(m.docs))
	for i, doc := range m.docs {
		out[i] = cosine(q, qn, doc, m.norms[i])
	}
	return out
}

// Norm returns the Euclidean length of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b. It is defined as 0 when
// either vector has zero length.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	return cosine(a, Norm(a), b, Norm(b)), nil
}

func cosine(a []float64, na float64, b []float64, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	sim := dot / (na * nb)
	// Rounding can push identical directions a hair past 1.
	if sim > 1 {
		return 1
	}
	if sim < 0 {
		return 0
	}
	return sim
}

// Scored pairs a corpus index with its similarity score.
type Scored struct {
	Index int
	Score float64
}

// Rank keeps the scores strictly greater than threshold and orders them by
// descending score, breaking ties by corpus order. A positive limit caps the
// number of results.
func Rank(scores []float64, threshold float64, limit int) []Scored {
	out := make([]Scored, 0, len(scores))
	for i, s := range scores {
		if s > threshold {
			out = append(out, Scored{Index: i, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
