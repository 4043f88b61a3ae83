package question

import "strings"

// Placeholder marks where an image goes inside question content. The Nth
// occurrence binds to the Nth entry of the question's images.
const Placeholder = "image_placeholder"

// CountPlaceholders returns the number of placeholder tokens in content.
func CountPlaceholders(content string) int {
	return strings.Count(content, Placeholder)
}

// SplitContent splits content around placeholders. The result always has
// CountPlaceholders(content)+1 segments; image i goes between segment i and i+1.
func SplitContent(content string) []string {
	return strings.Split(content, Placeholder)
}

// Segment is one run of question content: plain text, or the placeholder
// slot Slot with its bound image. Missing marks a slot with no image.
type Segment struct {
	Text    string
	Slot    int
	Image   string
	Missing bool
}

// Segments splits content into text runs and placeholder slots, binding slot
// i to images[i]. Empty text runs are omitted.
func Segments(content string, images []string) []Segment {
	parts := SplitContent(content)
	out := make([]Segment, 0, 2*len(parts)-1)
	for i, part := range parts {
		if part != "" {
			out = append(out, Segment{Text: part})
		}
		if i == len(parts)-1 {
			break
		}
		seg := Segment{Slot: i, Missing: true}
		if i < len(images) && images[i] != "" {
			seg.Image, seg.Missing = images[i], false
		}
		out = append(out, seg)
	}
	return out
}

// RenderContent substitutes each placeholder with render(i, images[i]).
// Placeholders without a bound image are kept verbatim.
func RenderContent(content string, images []string, render func(i int, src string) string) string {
	var sb strings.Builder
	for _, seg := range Segments(content, images) {
		switch {
		case seg.Missing:
			sb.WriteString(Placeholder)
		case seg.Image != "":
			sb.WriteString(render(seg.Slot, seg.Image))
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// BindImages builds the images array saved with a question. Slot i takes
// uploads[i] when present, otherwise existing[i]. The result covers every
// placeholder slot and every existing image so positions never shift; slots
// with neither an upload nor an existing URL stay empty, except at the tail
// where they are dropped.
func BindImages(content string, existing []string, uploads map[int]string) []string {
	n := CountPlaceholders(content)
	if len(existing) > n {
		n = len(existing)
	}
	for slot := range uploads {
		if slot >= n {
			n = slot + 1
		}
	}
	out := make([]string, n)
	for i := range out {
		if u, ok := uploads[i]; ok && u != "" {
			out[i] = u
			continue
		}
		if i < len(existing) {
			out[i] = existing[i]
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
