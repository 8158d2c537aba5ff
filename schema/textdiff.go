package schema

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// TextDiff renders a line diff between the YAML forms of two models.
// Lines are prefixed with "-", "+" or a space. A nil model renders empty.
func TextDiff(prev, next *Model) (string, error) {
	a, err := render(prev)
	if err != nil {
		return "", err
	}
	b, err := render(next)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	for _, d := range diffs {
		var mark string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			mark = "+"
		case diffmatchpatch.DiffDelete:
			mark = "-"
		default:
			mark = " "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(mark)
			sb.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String(), nil
}

func render(m *Model) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
