// Package bids parses BIDS filenames and the companion files of a scan.
package bids

import (
	"strconv"
	"strings"
)

// ImageExtensions are the recognised image file extensions, longest first
var ImageExtensions = []string{".nii.gz", ".nii"}

// Entities holds the key-value pairs and suffix of a BIDS filename
type Entities struct {
	Pairs  map[string]string
	Suffix string
}

// IsImage reports whether name carries an image extension
func IsImage(name string) bool {
	_, ok := trimImageExt(name)
	return ok
}

// Stem removes the image extension from name. Non-image names are returned unchanged.
func Stem(name string) string {
	stem, _ := trimImageExt(name)
	return stem
}

func trimImageExt(name string) (string, bool) {
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return name, false
}

// ParseName splits a BIDS filename into entities and suffix
func ParseName(name string) Entities {
	stem := Stem(name)
	parts := strings.Split(stem, "_")

	e := Entities{Pairs: make(map[string]string)}
	for i, part := range parts {
		key, value, ok := strings.Cut(part, "-")
		if !ok {
			if i == len(parts)-1 {
				e.Suffix = part
			}
			continue
		}
		e.Pairs[key] = value
	}
	return e
}

// Get returns the value of an entity, empty if absent
func (e Entities) Get(key string) string {
	return e.Pairs[key]
}

// Echo returns the echo index, 0 if absent or malformed
func (e Entities) Echo() int {
	v, ok := e.Pairs["echo"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// ReplaceEcho rewrites the echo entity of a stem, keeping every other entity in place
func ReplaceEcho(stem, value string) string {
	parts := strings.Split(stem, "_")
	for i, part := range parts {
		if strings.HasPrefix(part, "echo-") {
			parts[i] = "echo-" + value
		}
	}
	return strings.Join(parts, "_")
}
