package ai

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint derives the cache identity of a request: two requests with
// the same kind, prompt and context always produce the same fingerprint.
// Owner, priority and ID are deliberately excluded so identical work
// shares a cache entry.
func (r *Request) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(r.Kind))
	h.Write([]byte{0})
	h.Write([]byte(r.Prompt))
	h.Write([]byte{0})
	h.Write(canonicalContext(r.Context))
	return fmt.Sprintf("%s:%x", r.Kind, h.Sum(nil))
}

// canonicalContext serializes context with sorted keys so map iteration
// order cannot change the fingerprint.
func canonicalContext(ctx map[string]any) []byte {
	if len(ctx) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		v, err := json.Marshal(ctx[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", ctx[k]))
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, v...)
		buf = append(buf, ';')
	}
	return buf
}
