package graph

import (
	"bytes"
	"compress/zlib"
	"io/ioutil"
	"sort"
	"strings"
)

// EncodeParentMapBody serializes an expansion result for the wire: one line
// per key, the key followed by its space-joined parents, sorted by key so
// adjacent similar keys compress well, then zlib-compressed.
func EncodeParentMapBody(result map[string][]string) ([]byte, error) {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		parts := append([]string{k}, result[k]...)
		lines = append(lines, strings.Join(parts, " "))
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(strings.Join(lines, "\n"))); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeParentMapBody inverts EncodeParentMapBody. MissingPrefix keys are
// returned as-is for the caller to interpret.
func DecodeParentMapBody(body []byte) (map[string][]string, error) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string)
	if len(raw) == 0 {
		return result, nil
	}
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Split(line, " ")
		result[fields[0]] = fields[1:]
	}
	return result, nil
}
