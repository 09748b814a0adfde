package document

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sort"

	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/docerr"
)

// changeLine is one line of the persisted change log: a change's
// canonical encoded bytes, carried as JSON so encoding/json's own
// base64 handling of []byte fields does the binary-safe escaping.
//
// This mirrors the teacher's former internal/jsonl reader: a
// bufio.Scanner with an enlarged line buffer, one json.Unmarshal per
// line, adapted from per-line issues to per-line encoded changes (spec
// §6 "a single byte blob"; §8 incremental equivalence).
type changeLine struct {
	Raw []byte `json:"raw"`
}

// encodeChangeLog serializes changes sorted by hash rather than in
// application order, so that two documents holding the same set of
// changes (spec §8 Determinism: "applied in any order") produce
// byte-identical Save output regardless of which order each one
// happened to record or receive them in.
func encodeChangeLog(changes []*change.Change) ([]byte, error) {
	sorted := append([]*change.Change(nil), changes...)
	sort.Slice(sorted, func(i, j int) bool {
		return change.HashString(sorted[i].Hash) < change.HashString(sorted[j].Hash)
	})
	var buf bytes.Buffer
	for _, c := range sorted {
		line, err := json.Marshal(changeLine{Raw: c.Raw})
		if err != nil {
			return nil, docerr.Encode(err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func decodeChangeLog(data []byte) ([][]byte, error) {
	var raws [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cl changeLine
		if err := json.Unmarshal(line, &cl); err != nil {
			return nil, docerr.Decode(err)
		}
		raws = append(raws, cl.Raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, docerr.Decode(err)
	}
	return raws, nil
}
