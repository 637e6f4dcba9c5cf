package inference

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/logger"
)

// ClassMap maps class indices to display names. It is immutable after
// construction.
type ClassMap struct {
	labels map[int]string
}

// NewClassMap assigns labels[i] to class i.
func NewClassMap(labels []string) *ClassMap {
	m := make(map[int]string, len(labels))
	for i, l := range labels {
		m[i] = l
	}
	return &ClassMap{labels: m}
}

// ParseClassMap reads a class index CSV. The first row is a header; each
// following row holds the index in the first column and the display name in
// the third.
func ParseClassMap(r io.Reader) (*ClassMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Newf("class map is empty").
				Component("inference").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryLabelLoad).
			Build()
	}

	labels := make(map[int]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.New(err).
				Component("inference").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		if len(record) < 3 {
			line, _ := reader.FieldPos(0)
			return nil, errors.Newf("class map line %d: expected 3 columns, got %d", line, len(record)).
				Component("inference").
				Category(errors.CategoryLabelLoad).
				Build()
		}

		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, errors.Newf("class map line %d: bad index %q", line, record[0]).
				Component("inference").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		labels[index] = record[2]
	}

	return &ClassMap{labels: labels}, nil
}

// LoadClassMap reads a class index CSV from disk.
func LoadClassMap(path string) (*ClassMap, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from settings
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	m, err := ParseClassMap(f)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("loaded class map",
		logger.String("path", path),
		logger.Int("classes", m.Len()))
	return m, nil
}

// Label returns the display name of class i, or its decimal index when the
// map has no entry.
func (c *ClassMap) Label(i int) string {
	if c != nil {
		if l, ok := c.labels[i]; ok {
			return l
		}
	}
	return strconv.Itoa(i)
}

// Len is the number of known classes.
func (c *ClassMap) Len() int {
	if c == nil {
		return 0
	}
	return len(c.labels)
}
