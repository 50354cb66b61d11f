// Package assets builds URLs for files served from the storefront's public
// directory, honouring the deployment base path.
package assets

import (
	"net/url"
	"regexp"
	"strings"
)

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

// BasePath returns the path prefix the storefront is mounted under. A
// configured base always wins. Otherwise the first segment of the request
// path is treated as a deployment prefix when it looks like a generated
// identifier: at least two hyphens and longer than 15 characters, or a
// "-cai" suffix.
func BasePath(configured, requestPath string) string {
	if configured = strings.TrimSpace(configured); configured != "" && configured != "/" {
		return "/" + strings.Trim(configured, "/") + "/"
	}

	parts := strings.FieldsFunc(requestPath, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return "/"
	}
	first := parts[0]
	if (strings.Count(first, "-") >= 2 && len(first) > 15) || strings.HasSuffix(first, "-cai") {
		return "/" + first + "/"
	}
	return "/"
}

// PublicURL joins base and a path relative to the public directory,
// escaping each segment on its own.
func PublicURL(base, relative string) string {
	segments := strings.Split(strings.TrimPrefix(relative, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return duplicateSlashes.ReplaceAllString(base+strings.Join(segments, "/"), "/")
}

type imageSet struct {
	productID string
	folder    string
	files     []string
}

var productImages = []imageSet{
	{
		productID: "cmf-earbuds",
		folder:    "cmf-cc-earbuds",
		files: []string{
			"cmf 1-2.webp",
			"cmf 2-1.webp",
			"cmf 7-1.webp",
			"cmf 1-1.webp",
			"cmf 6-1.webp",
		},
	},
}

// ProductImages returns the gallery for a product, matching its id exactly
// first and then by substring in either direction. Unknown products have
// no images.
func ProductImages(base, idOrName string) []string {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if key == "" {
		return nil
	}

	set, ok := findImages(func(id string) bool { return id == key })
	if !ok {
		set, ok = findImages(func(id string) bool {
			return strings.Contains(key, id) || strings.Contains(id, key)
		})
	}
	if !ok {
		return nil
	}

	out := make([]string, 0, len(set.files))
	for _, f := range set.files {
		out = append(out, PublicURL(base, "assets/products/"+set.folder+"/"+f))
	}
	return out
}

// PrimaryImage is the first gallery image, or "" when there is none.
func PrimaryImage(base, idOrName string) string {
	if imgs := ProductImages(base, idOrName); len(imgs) > 0 {
		return imgs[0]
	}
	return ""
}

func findImages(match func(id string) bool) (imageSet, bool) {
	for _, s := range productImages {
		if match(strings.ToLower(s.productID)) {
			return s, true
		}
	}
	return imageSet{}, false
}
