package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// rawLine is one line of a drop file. Exactly one of Header or Count is set.
type rawLine struct {
	Site   int64      `json:"site"`
	Header *RawHeader `json:"header,omitempty"`
	Count  *RawRecord `json:"count,omitempty"`
}

// maxLineBytes bounds a single drop-file line. Count rows are small; this
// only guards against a corrupt file without a newline.
const maxLineBytes = 1 << 20

// ParseBatches reads a JSON-lines drop file and groups its rows into one
// batch per site, in first-seen site order. A malformed line fails the whole
// file: a drop file is a unit, and importing half of one would hide the
// corruption.
func ParseBatches(r io.Reader) ([]Batch, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	bysite := make(map[int64]*Batch)
	var order []int64

	lineno := 0
	for scanner.Scan() {
		lineno++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line rawLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if line.Site <= 0 {
			return nil, fmt.Errorf("line %d: missing or invalid site", lineno)
		}
		if (line.Header == nil) == (line.Count == nil) {
			return nil, fmt.Errorf("line %d: expected exactly one of header or count", lineno)
		}

		batch, ok := batchFor(bysite, line.Site)
		if !ok {
			order = append(order, line.Site)
		}
		if line.Header != nil {
			if batch.Header != nil {
				return nil, fmt.Errorf("line %d: duplicate header for site %d", lineno, line.Site)
			}
			batch.Header = line.Header
		} else {
			batch.Records = append(batch.Records, *line.Count)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read drop file: %w", err)
	}

	batches := make([]Batch, 0, len(order))
	for _, site := range order {
		batches = append(batches, *bysite[site])
	}
	return batches, nil
}

func batchFor(bysite map[int64]*Batch, site int64) (*Batch, bool) {
	if batch, ok := bysite[site]; ok {
		return batch, true
	}
	batch := &Batch{Site: site}
	bysite[site] = batch
	return batch, false
}
