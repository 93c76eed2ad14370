package gallery

import "strings"

// Filter returns the images whose URL contains query, ignoring case, in
// their original order. The whole URL is matched, base included. An empty
// query returns every image.
func Filter(images []string, query string) []string {
	if query == "" {
		out := make([]string, len(images))
		copy(out, images)
		return out
	}

	needle := strings.ToLower(query)
	out := make([]string, 0, len(images))
	for _, img := range images {
		if strings.Contains(strings.ToLower(img), needle) {
			out = append(out, img)
		}
	}
	return out
}
