// Package topic holds the grammar primitives shared by the hub and provisioning topic codecs.
package topic

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// Separator delimits topic segments.
	Separator = "/"

	// QuerySeparator introduces the property segment of $iothub and $dps topics.
	QuerySeparator = "?"

	// PairSeparator delimits key=value pairs inside a property segment.
	PairSeparator = "&"

	// KeyValueSeparator splits a property pair into key and value.
	KeyValueSeparator = "="

	// RequestMarker prefixes request properties such as $rid and $version.
	RequestMarker = "$"
)

// Encode percent-encodes a variable topic segment.
// Everything outside the RFC 3986 unreserved set is escaped and space becomes %20.
func Encode(value string) string {
	// QueryEscape leaves only unreserved characters and turns space into '+'.
	// A literal '+' is already %2B, so every remaining '+' was a space.
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// Decode reverses Encode. A literal '+' stays '+', it is never read as a space.
func Decode(value string) (string, error) {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEncoding, value)
	}
	return decoded, nil
}

// SplitQuery separates the path of a topic from its property segment.
// ok is false when the topic carries no '?'.
func SplitQuery(topic string) (path, query string, ok bool) {
	return strings.Cut(topic, QuerySeparator)
}

// Segments splits a topic path on '/'.
func Segments(path string) []string {
	return strings.Split(path, Separator)
}

// ExtractProperties decodes a key=value property segment.
//
// Empty pairs are skipped and a pair without '=' yields an empty value.
// A key seen twice fails the whole extraction with ErrDuplicateProperty.
func ExtractProperties(segment string) (map[string]string, error) {
	return extract(segment, func(k string) string { return k })
}

// ExtractRequestProperties is ExtractProperties with the request marker
// stripped from keys, so "$rid" and "rid" are the same key.
func ExtractRequestProperties(segment string) (map[string]string, error) {
	return extract(segment, func(k string) string {
		return strings.TrimPrefix(k, RequestMarker)
	})
}

func extract(segment string, normalize func(string) string) (map[string]string, error) {
	props := make(map[string]string)
	if segment == "" {
		return props, nil
	}

	for _, pair := range strings.Split(segment, PairSeparator) {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, KeyValueSeparator)

		key, err := Decode(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := Decode(rawValue)
		if err != nil {
			return nil, err
		}

		key = normalize(key)
		if _, exists := props[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProperty, key)
		}
		props[key] = value
	}

	return props, nil
}

// EncodeProperties renders key=value pairs in the given order, encoding both sides.
func EncodeProperties(pairs [][2]string) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, Encode(p[0])+KeyValueSeparator+Encode(p[1]))
	}
	return strings.Join(parts, PairSeparator)
}
