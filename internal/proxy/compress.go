package proxy

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// decodeBody undoes a backend's Content-Encoding so the theming engine and
// link rewriter can operate on plain HTML bytes (spec §4.6 implicitly
// assumes a readable body; Deliverance's lxml parse step has the same
// requirement). An absent or "identity" encoding passes bytes through
// unchanged; any encoding other than gzip, br or deflate is an error.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
}

// encodeBody is decodeBody's response-side counterpart (spec §4.7): after a
// themed/rewritten body is re-serialized, re-encode it so a client that
// advertised Accept-Encoding support still receives a compressed response.
func encodeBody(encoding string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "deflate":
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
	return buf.Bytes(), nil
}

// negotiateEncoding picks the strongest of gzip/br/deflate (brotli first,
// the modern default) that the client's Accept-Encoding header names
// without a "q=0" exclusion, or "" if none match (meaning: send the
// response uncompressed). There is no third-party Accept-Encoding
// negotiator in the retrieved corpus, so this is hand-rolled.
func negotiateEncoding(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}
	accepted := map[string]bool{}
	rejected := map[string]bool{}
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, hasParams := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if hasParams && strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			rejected[name] = true
			continue
		}
		accepted[name] = true
	}
	for _, candidate := range []string{"br", "gzip", "deflate"} {
		if rejected[candidate] {
			continue
		}
		if accepted[candidate] || (accepted["*"] && !rejected["*"]) {
			return candidate
		}
	}
	return ""
}
