package tabs

import (
	"strconv"
	"strings"
)

const defaultHeadingTemplate = "#### [Tab: {group} - {label}]"

// Merger folds captured artifacts into the baseline document. The baseline
// stands unmodified first; every artifact is appended in full under a
// labeled heading in discovery order. Nothing is ever withheld for textual
// overlap — recall wins over size.
type Merger struct {
	HeadingTemplate string
}

// Merge returns the final document text. Artifacts from failed tabs never
// reach here; an empty artifact list returns the baseline untouched.
func (m *Merger) Merge(baseline string, artifacts []Artifact) string {
	text := strings.TrimSpace(baseline)
	if len(artifacts) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for _, a := range artifacts {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.heading(a))
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(a.Content))
	}
	return b.String()
}

func (m *Merger) heading(a Artifact) string {
	template := m.HeadingTemplate
	if template == "" {
		template = defaultHeadingTemplate
	}
	group := a.GroupTitle
	if group == "" {
		group = "Tabs"
	}
	label := a.TabLabel
	if label == "" {
		label = "Tab"
	}
	r := strings.NewReplacer(
		"{group}", group,
		"{label}", label,
		"{index}", strconv.Itoa(a.Ordinal+1),
	)
	return strings.TrimSpace(r.Replace(template))
}
