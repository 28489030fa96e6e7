package promptdef

import "strings"

const delimiter = "---"

// SplitFrontmatter separates the YAML header from the template body.
// The first line must open the header and a later line must close it; the body
// is everything after the closing line, unmodified.
func SplitFrontmatter(content string) (frontmatter string, body string, err error) {
	lines := splitLines(content)

	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), delimiter) {
		return "", "", invalidSchema("missing frontmatter delimiter (---) at start of document")
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), delimiter) {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 {
		return "", "", invalidSchema("missing closing frontmatter delimiter (---)")
	}

	frontmatter = strings.Join(lines[1:closeIdx], "\n")
	body = strings.Join(lines[closeIdx+1:], "\n")
	return frontmatter, body, nil
}

// splitLines splits on "\n", strips one trailing "\r" per line, and drops the
// empty element produced by a final newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
