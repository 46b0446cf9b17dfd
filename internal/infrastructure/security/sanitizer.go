package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Sensitive header names that should be redacted.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-goog-api-key":      true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// Sensitive field names in JSON bodies that should be redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"key",
	"authorization",
	"api_key",
	"apikey",
	"access_token",
	"credential",
	"auth",
}

const redactedValue = "[REDACTED]"

// inlineDataPreview is how many characters of a base64 document payload are
// kept in the audit log. Gemini requests embed whole PDFs; storing them in
// full would bloat the audit table for no diagnostic value.
const inlineDataPreview = 64

// SanitizeHeaders removes sensitive headers from an HTTP header map.
// Returns a new map with sensitive values redacted.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string)

	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = strings.Join(values, ", ")
		}
	}

	return sanitized
}

// SanitizeBody removes sensitive fields from a JSON body and truncates
// embedded document payloads. Returns sanitized JSON bytes. Handles
// gzip-compressed and binary data properly.
func SanitizeBody(body []byte, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	// gzip magic number: 0x1f 0x8b
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		decompressed, err := decompressGzip(body)
		if err == nil {
			body = decompressed
		} else {
			return wrapBinaryAsJSON(body, "gzip-compressed (decompression failed)")
		}
	}

	if !utf8.Valid(body) {
		return wrapBinaryAsJSON(body, "binary (non-UTF8)")
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		if maxSize > 0 && len(body) > maxSize {
			truncated := map[string]interface{}{
				"_truncated": true,
				"_size":      len(body),
				"_preview":   string(body[:maxSize]),
			}
			result, _ := json.Marshal(truncated)
			return json.RawMessage(result)
		}
		wrapped := map[string]interface{}{
			"_raw":    string(body),
			"_format": "text",
		}
		result, _ := json.Marshal(wrapped)
		return json.RawMessage(result)
	}

	sanitized := sanitizeValue(data)

	result, err := json.Marshal(sanitized)
	if err != nil {
		wrapped := map[string]interface{}{
			"_raw":    string(body),
			"_format": "text",
		}
		result, _ = json.Marshal(wrapped)
		return json.RawMessage(result)
	}

	if maxSize > 0 && len(result) > maxSize {
		truncated := map[string]interface{}{
			"_truncated": true,
			"_size":      len(result),
			"_preview":   string(result[:maxSize]),
		}
		result, _ = json.Marshal(truncated)
	}

	return json.RawMessage(result)
}

// decompressGzip attempts to decompress gzip-compressed data.
func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// wrapBinaryAsJSON wraps binary data as a JSON object with base64 encoding.
func wrapBinaryAsJSON(data []byte, format string) json.RawMessage {
	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) > inlineDataPreview {
		encoded = encoded[:inlineDataPreview] + "..."
	}
	wrapped := map[string]interface{}{
		"_binary": true,
		"_format": format,
		"_size":   len(data),
		"_base64": encoded,
	}
	result, _ := json.Marshal(wrapped)
	return json.RawMessage(result)
}

// sanitizeValue recursively sanitizes a JSON value.
func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return sanitizeMap(val)
	case []interface{}:
		return sanitizeSlice(val)
	default:
		return val
	}
}

// sanitizeMap sanitizes a JSON object by redacting sensitive fields and
// truncating inline document data.
func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{})

	for key, value := range m {
		lowerKey := strings.ToLower(key)

		if lowerKey == "inline_data" || lowerKey == "inlinedata" {
			sanitized[key] = truncateInlineData(value)
			continue
		}

		isSensitive := false
		for _, sensitiveField := range sensitiveFields {
			if strings.Contains(lowerKey, sensitiveField) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			sanitized[key] = redactedValue
		} else {
			sanitized[key] = sanitizeValue(value)
		}
	}

	return sanitized
}

// truncateInlineData replaces the base64 payload of a Gemini inline_data part
// with a short preview and the original length.
func truncateInlineData(v interface{}) interface{} {
	part, ok := v.(map[string]interface{})
	if !ok {
		return sanitizeValue(v)
	}

	out := make(map[string]interface{}, len(part))
	for key, value := range part {
		if strings.ToLower(key) != "data" {
			out[key] = sanitizeValue(value)
			continue
		}
		data, ok := value.(string)
		if !ok {
			out[key] = sanitizeValue(value)
			continue
		}
		if len(data) > inlineDataPreview {
			out[key] = fmt.Sprintf("%s... (%d bytes)", data[:inlineDataPreview], len(data))
		} else {
			out[key] = data
		}
	}
	return out
}

// sanitizeSlice sanitizes a JSON array by recursively sanitizing each element.
func sanitizeSlice(s []interface{}) []interface{} {
	sanitized := make([]interface{}, len(s))
	for i, value := range s {
		sanitized[i] = sanitizeValue(value)
	}
	return sanitized
}

// SanitizeURL redacts sensitive query parameters from a URL. The Gemini API
// key travels as a "key" query parameter, so this must run before any URL is
// logged or persisted.
func SanitizeURL(url string) string {
	lowerURL := strings.ToLower(url)

	for _, sensitiveField := range sensitiveFields {
		if strings.Contains(lowerURL, sensitiveField+"=") {
			url = redactQueryParam(url, sensitiveField)
		}
	}

	return url
}

// redactQueryParam redacts the value of a query parameter.
func redactQueryParam(url, param string) string {
	lowerURL := strings.ToLower(url)
	lowerParam := strings.ToLower(param)

	if idx := strings.Index(lowerURL, lowerParam+"="); idx != -1 {
		startIdx := idx + len(lowerParam) + 1
		endIdx := strings.IndexAny(url[startIdx:], "&")

		if endIdx == -1 {
			return url[:startIdx] + redactedValue
		}

		return url[:startIdx] + redactedValue + url[startIdx+endIdx:]
	}

	return url
}
