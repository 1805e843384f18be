package leonardo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The provider has shipped several envelope shapes for the same payloads.
// Each strategy below knows one shape and reports ok=false when it does not
// apply; callers walk the list in order and take the first hit.

type strategy[T any] struct {
	name    string
	extract func(doc map[string]any) (T, bool)
}

func firstMatch[T any](doc map[string]any, strategies []strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if v, ok := s.extract(doc); ok {
			return v, s.name, true
		}
	}
	var zero T
	return zero, "", false
}

func lookup(doc any, path ...string) (any, bool) {
	cur := doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(doc any, path ...string) (string, bool) {
	v, ok := lookup(doc, path...)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case json.Number:
		return t.String(), true
	}
	return "", false
}

type ticketFields struct {
	URL     string
	Fields  map[string]string
	ImageID string
}

func ticketAt(path ...string) strategy[ticketFields] {
	name := strings.Join(path, ".")
	if name == "" {
		name = "top-level"
	}
	return strategy[ticketFields]{
		name: name,
		extract: func(doc map[string]any) (ticketFields, bool) {
			var root any = doc
			if len(path) > 0 {
				v, ok := lookup(doc, path...)
				if !ok {
					return ticketFields{}, false
				}
				root = v
			}
			url, ok := lookupString(root, "url")
			if !ok {
				return ticketFields{}, false
			}
			id, ok := lookupString(root, "id")
			if !ok {
				return ticketFields{}, false
			}
			raw, ok := lookup(root, "fields")
			if !ok {
				return ticketFields{}, false
			}
			fields, ok := normalizeFields(raw)
			if !ok {
				return ticketFields{}, false
			}
			return ticketFields{URL: url, Fields: fields, ImageID: id}, true
		},
	}
}

var ticketStrategies = []strategy[ticketFields]{
	ticketAt("uploadInitImage"),
	ticketAt("data", "uploadInitImage"),
	ticketAt("init_image"),
	ticketAt(),
}

// normalizeFields accepts either a JSON object or a JSON-encoded string of one.
func normalizeFields(raw any) (map[string]string, bool) {
	if s, ok := raw.(string); ok {
		var decoded map[string]any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, false
		}
		raw = decoded
	}
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, true
}

func stringAt(path ...string) strategy[string] {
	return strategy[string]{
		name: strings.Join(path, "."),
		extract: func(doc map[string]any) (string, bool) {
			return lookupString(doc, path...)
		},
	}
}

var generationIDStrategies = []strategy[string]{
	stringAt("generate", "generationId"),
	stringAt("sdGenerationJob", "generationId"),
	stringAt("data", "generate", "generationId"),
	stringAt("generationId"),
	stringAt("generation_id"),
	stringAt("id"),
}

var remoteStatusStrategies = []strategy[string]{
	stringAt("generations_by_pk", "status"),
	stringAt("generation", "status"),
	stringAt("data", "generations_by_pk", "status"),
	stringAt("status"),
}

// imageURLFields are probed in order on every result entry.
var imageURLFields = []string{"url", "image_url", "imageUrl", "uri"}

func imagesAt(path ...string) strategy[[]string] {
	return strategy[[]string]{
		name: strings.Join(path, "."),
		extract: func(doc map[string]any) ([]string, bool) {
			v, ok := lookup(doc, path...)
			if !ok {
				return nil, false
			}
			list, ok := v.([]any)
			if !ok {
				return nil, false
			}
			urls := imageURLs(list)
			return urls, len(urls) > 0
		},
	}
}

var imageListStrategies = []strategy[[]string]{
	imagesAt("generations_by_pk", "generated_images"),
	imagesAt("data", "generations_by_pk", "generated_images"),
	imagesAt("generation", "generated_images"),
	imagesAt("job", "result", "images"),
	imagesAt("result", "images"),
	imagesAt("generated_images"),
	imagesAt("images"),
}

func imageURLs(list []any) []string {
	var out []string
	for _, entry := range list {
		if s, ok := entry.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		for _, field := range imageURLFields {
			if url, ok := lookupString(entry, field); ok {
				out = append(out, url)
				break
			}
		}
	}
	return out
}
