// Package seed loads reference disease corpora from JSON, YAML and CSV files.
package seed

import (
	"bytes"
	"embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// Format is a corpus file encoding
type Format string

// Supported formats
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

//go:embed data/diseases.json
var defaultCorpus embed.FS

// Accepted field names, in priority order
var (
	nameKeys     = []string{"disease", "name", "label"}
	keywordKeys  = []string{"symptoms_en", "symptoms", "keywords"}
	sentenceKeys = []string{"symptom_sentence_en", "symptom_text", "text"}
	tipKeys      = []string{"health_tip_en", "health_tip", "tip"}
)

// record is one corpus row before merging
type record struct {
	name     string
	sentence string
	keywords []string
	tip      string
}

// DetectFormat infers the format from a file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported corpus file extension %q (want .json, .yaml, .yml or .csv)", filepath.Ext(path))
}

// LoadFile reads a corpus file, choosing the decoder by extension
func LoadFile(path string) ([]domain.DiseaseDocument, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	docs, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// Default returns the corpus bundled with the binary
func Default() ([]domain.DiseaseDocument, error) {
	data, err := defaultCorpus.ReadFile("data/diseases.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read bundled corpus: %w", err)
	}
	return Load(bytes.NewReader(data), FormatJSON)
}

// Load decodes a corpus and merges rows sharing a disease name. Keyword lists
// are unioned, symptom sentences concatenated and the first health tip kept.
func Load(r io.Reader, format Format) ([]domain.DiseaseDocument, error) {
	var (
		records []record
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = decodeJSON(r)
	case FormatYAML:
		records, err = decodeYAML(r)
	case FormatCSV:
		records, err = decodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return merge(records)
}

func decodeJSON(r io.Reader) ([]record, error) {
	var raw interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON corpus: %w", err)
	}
	return fromDocument(raw)
}

func decodeYAML(r io.Reader) ([]record, error) {
	var raw interface{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("corpus file is empty")
		}
		return nil, fmt.Errorf("invalid YAML corpus: %w", err)
	}
	return fromDocument(raw)
}

// fromDocument accepts a top-level list or an object with a "diseases" list
func fromDocument(raw interface{}) ([]record, error) {
	if obj, ok := raw.(map[string]interface{}); ok {
		raw = obj["diseases"]
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New(`corpus must be a list of diseases or an object with a "diseases" list`)
	}

	records := make([]record, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("entry %d: expected an object", i)
		}
		rec, err := fromMap(fields)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func fromMap(fields map[string]interface{}) (record, error) {
	lookup := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		lookup[strings.ToLower(strings.TrimSpace(k))] = v
	}

	var rec record
	rec.name, _ = firstString(lookup, nameKeys)
	rec.sentence, _ = firstString(lookup, sentenceKeys)
	rec.tip, _ = firstString(lookup, tipKeys)

	for _, key := range keywordKeys {
		v, ok := lookup[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			// A plain string under a keyword key is a sentence, as in the
			// label/text conversions of Symptom2Disease.
			if rec.sentence == "" {
				rec.sentence = val
			}
		case []interface{}:
			for _, kw := range val {
				s, ok := kw.(string)
				if !ok {
					return rec, fmt.Errorf("%s must contain only strings", key)
				}
				rec.keywords = append(rec.keywords, s)
			}
		default:
			return rec, fmt.Errorf("%s must be a string or a list of strings", key)
		}
		break
	}
	return rec, nil
}

func firstString(fields map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func decodeCSV(r io.Reader) ([]record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("corpus file is empty")
		}
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := columns[key]; !dup && key != "" {
			columns[key] = i
		}
	}
	column := func(keys []string) int {
		for _, k := range keys {
			if i, ok := columns[k]; ok {
				return i
			}
		}
		return -1
	}

	nameCol := column(nameKeys)
	if nameCol < 0 {
		return nil, fmt.Errorf("CSV header must contain one of %s", strings.Join(nameKeys, ", "))
	}
	sentenceCol := column(append(append([]string{}, sentenceKeys...), "symptoms"))
	keywordCol := column([]string{"symptoms_en", "keywords"})
	tipCol := column(tipKeys)
	if sentenceCol < 0 && keywordCol < 0 {
		return nil, errors.New("CSV header must contain a symptom text or keyword column")
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := record{
			name:     cell(row, nameCol),
			sentence: cell(row, sentenceCol),
			tip:      cell(row, tipCol),
		}
		if kw := cell(row, keywordCol); kw != "" {
			rec.keywords = strings.FieldsFunc(kw, func(r rune) bool { return r == ';' || r == '|' })
		}
		records = append(records, rec)
	}
	return records, nil
}

// merge collapses records by case-sensitive trimmed name, keeping first-seen
// order
func merge(records []record) ([]domain.DiseaseDocument, error) {
	if len(records) == 0 {
		return nil, errors.New("corpus contains no diseases")
	}

	index := make(map[string]int, len(records))
	seen := make(map[string]map[string]bool, len(records))
	var docs []domain.DiseaseDocument

	for i, rec := range records {
		name := strings.TrimSpace(rec.name)
		if name == "" {
			return nil, fmt.Errorf("entry %d: disease name is required", i)
		}

		pos, ok := index[name]
		if !ok {
			pos = len(docs)
			index[name] = pos
			seen[name] = make(map[string]bool)
			docs = append(docs, domain.DiseaseDocument{Name: name})
		}
		doc := &docs[pos]

		if s := strings.TrimSpace(rec.sentence); s != "" {
			if doc.SymptomText == "" {
				doc.SymptomText = s
			} else {
				doc.SymptomText += " " + s
			}
		}
		for _, kw := range rec.keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" || seen[name][strings.ToLower(kw)] {
				continue
			}
			seen[name][strings.ToLower(kw)] = true
			doc.Symptoms = append(doc.Symptoms, kw)
		}
		if doc.HealthTip == "" {
			doc.HealthTip = strings.TrimSpace(rec.tip)
		}
	}

	for _, doc := range docs {
		if strings.TrimSpace(doc.Text()) == "" {
			return nil, fmt.Errorf("disease %q has no symptom text or keywords", doc.Name)
		}
	}
	return docs, nil
}
