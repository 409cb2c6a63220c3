// Package profile decides how a user's profile picture blob may reach a
// browser. The blob is free-form user input, so nothing in it is trusted.
package profile

import (
	"net/url"
	"strings"
)

// MaxPictureSize bounds the stored blob.
const MaxPictureSize = 64 << 10

// Kind classifies a profile picture blob.
type Kind int

const (
	KindEmpty Kind = iota
	// KindImageURL is an http(s) URL or a data: URL of a raster image type.
	KindImageURL
	// KindSVG is inline SVG markup. It is only ever delivered as a
	// standalone, sandboxed document.
	KindSVG
	// KindText is anything else. It is shown as escaped text.
	KindText
)

// svgMarker is what identifies a blob as markup.
const svgMarker = "<svg"

var rasterDataPrefixes = []string{
	"data:image/png;",
	"data:image/jpeg;",
	"data:image/gif;",
	"data:image/webp;",
}

// Classify returns the kind of blob.
func Classify(blob string) Kind {
	trimmed := strings.TrimSpace(blob)
	switch {
	case trimmed == "":
		return KindEmpty
	case strings.Contains(strings.ToLower(trimmed), svgMarker):
		return KindSVG
	case isImageURL(trimmed):
		return KindImageURL
	default:
		return KindText
	}
}

func isImageURL(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range rasterDataPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SVGContentSecurityPolicy is sent with every SVG profile document. The
// sandbox directive keeps scripts and event handlers inside it from running
// even when the document is opened directly.
const SVGContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; sandbox"
