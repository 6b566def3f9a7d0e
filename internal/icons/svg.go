// Package icons post-processes the vendor-supplied SVG icons embedded in
// the blocked-service catalog so they render like built-in icon sets:
// no fixed pixel size, a 24x24 viewBox, and a single theme fill color.
package icons

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

const dataURIPrefix = "data:image/svg+xml;base64,"

var (
	widthAttr  = regexp.MustCompile(`(<svg[^>]*)\s+width\s*=\s*["'][^"']*["']`)
	heightAttr = regexp.MustCompile(`(<svg[^>]*)\s+height\s*=\s*["'][^"']*["']`)
	fillAttr   = regexp.MustCompile(`\s+fill\s*=\s*["'][^"']*["']`)
	strokeAttr = regexp.MustCompile(`\s+stroke\s*=\s*["'][^"']*["']`)
)

// ProcessSVGIcon normalizes a base64-encoded SVG and returns it as a data
// URI. Empty input yields an empty string. If the payload cannot be decoded
// the original base64 is wrapped unmodified rather than failing.
func ProcessSVGIcon(base64SVG, fillColor string) string {
	if base64SVG == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(base64SVG)
	if err != nil || !utf8.Valid(raw) {
		return dataURIPrefix + base64SVG
	}

	svg := normalizeSize(string(raw))
	svg = applyFillColor(svg, fillColor)

	return dataURIPrefix + base64.StdEncoding.EncodeToString([]byte(svg))
}

// normalizeSize strips the explicit width/height from the root svg element
// and guarantees a viewBox so the icon scales instead of rendering at a
// fixed pixel size.
func normalizeSize(svg string) string {
	svg = widthAttr.ReplaceAllString(svg, "$1")
	svg = heightAttr.ReplaceAllString(svg, "$1")

	if !strings.Contains(strings.ToLower(svg), "viewbox") {
		svg = strings.Replace(svg, "<svg", `<svg viewBox="0 0 24 24"`, 1)
	}
	return svg
}

// applyFillColor strips per-shape fill and stroke attributes and sets one
// fill on the root element. fill="none" and stroke="none" mean transparent,
// not unset, and must survive.
func applyFillColor(svg, fillColor string) string {
	svg = fillAttr.ReplaceAllStringFunc(svg, dropUnlessNone)
	svg = strokeAttr.ReplaceAllStringFunc(svg, dropUnlessNone)

	rootTag, _, _ := strings.Cut(svg, ">")
	if !strings.Contains(rootTag, `fill="`) && !strings.Contains(rootTag, `fill='`) {
		svg = strings.Replace(svg, "<svg", `<svg fill="`+fillColor+`"`, 1)
	}
	return svg
}

func dropUnlessNone(attr string) string {
	value := attrValue(attr)
	if value == "none" {
		return attr
	}
	return ""
}

// attrValue extracts the quoted value from a matched attribute.
func attrValue(attr string) string {
	for _, quote := range []string{`"`, `'`} {
		if start := strings.Index(attr, quote); start >= 0 {
			rest := attr[start+1:]
			if end := strings.Index(rest, quote); end >= 0 {
				return rest[:end]
			}
		}
	}
	return ""
}
