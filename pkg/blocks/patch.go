package blocks

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// mergePatch applies an RFC 7386 JSON merge patch to a JSON object. Both the
// target and the patch must be objects.
func mergePatch(target, patch []byte) ([]byte, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(target)) > 0 {
		if err := json.Unmarshal(target, &doc); err != nil {
			return nil, err
		}
	}
	var p map[string]any
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, err
	}
	return json.Marshal(mergeObject(doc, p))
}

func mergeObject(target, patch map[string]any) map[string]any {
	if target == nil {
		target = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			existing, _ := target[k].(map[string]any)
			target[k] = mergeObject(existing, sub)
			continue
		}
		target[k] = v
	}
	return target
}
