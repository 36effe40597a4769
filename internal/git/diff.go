package git

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/codexmonitor/gitfacade/internal/models"
)

// emptyTreeSHA is the id of the empty tree, used as the diff base on unborn branches.
const emptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// binarySniffLen matches git's own heuristic window for binary detection.
const binarySniffLen = 8000

// splitCombinedDiff splits `git diff` output into one entry per file.
func splitCombinedDiff(raw string) []models.GitFileDiff {
	var out []models.GitFileDiff
	var chunk []string
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		out = append(out, parseDiffChunk(chunk))
		chunk = nil
	}
	for _, line := range strings.SplitAfter(raw, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
		}
		if line == "" {
			continue
		}
		if len(chunk) == 0 && !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		chunk = append(chunk, line)
	}
	flush()
	return out
}

func parseDiffChunk(lines []string) models.GitFileDiff {
	fd := models.GitFileDiff{Status: models.FileModified, Diff: strings.Join(lines, "")}
	oldPath, newPath := gitHeaderPaths(strings.TrimSpace(strings.TrimPrefix(lines[0], "diff --git ")))

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "@@"):
			// headers end at the first hunk
			fd.Path, fd.OldPath = pickPaths(fd.Status, oldPath, newPath)
			return fd
		case strings.HasPrefix(line, "new file mode"):
			fd.Status = models.FileAdded
		case strings.HasPrefix(line, "deleted file mode"):
			fd.Status = models.FileDeleted
		case strings.HasPrefix(line, "rename from "):
			fd.Status = models.FileRenamed
			oldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			newPath = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "copy from "):
			fd.Status = models.FileCopied
			oldPath = strings.TrimPrefix(line, "copy from ")
		case strings.HasPrefix(line, "copy to "):
			newPath = strings.TrimPrefix(line, "copy to ")
		case strings.HasPrefix(line, "--- "):
			if p := headerPath(line[4:]); p != "" {
				oldPath = p
			}
		case strings.HasPrefix(line, "+++ "):
			if p := headerPath(line[4:]); p != "" {
				newPath = p
			}
		case strings.HasPrefix(line, "Binary files ") || line == "GIT binary patch":
			fd.Binary = true
		}
	}
	fd.Path, fd.OldPath = pickPaths(fd.Status, oldPath, newPath)
	return fd
}

func pickPaths(status models.FileChange, oldPath, newPath string) (string, string) {
	switch status {
	case models.FileDeleted:
		if oldPath != "" {
			return oldPath, ""
		}
		return newPath, ""
	case models.FileRenamed, models.FileCopied:
		return newPath, oldPath
	default:
		if newPath == "" {
			return oldPath, ""
		}
		return newPath, ""
	}
}

// gitHeaderPaths splits the "a/x b/y" part of a diff header. Unquoted paths may contain
// spaces, so the split prefers the point where both sides name the same file.
func gitHeaderPaths(rest string) (string, string) {
	if strings.HasPrefix(rest, "\"") {
		tokens := diffLineTokens(rest)
		if len(tokens) < 2 {
			return "", ""
		}
		return normalizeDiffPath(tokens[0]), normalizeDiffPath(tokens[1])
	}
	first := -1
	for i := 0; i+3 <= len(rest); i++ {
		if rest[i:i+3] != " b/" {
			continue
		}
		if first < 0 {
			first = i
		}
		a, b := normalizeDiffPath(rest[:i]), normalizeDiffPath(rest[i+1:])
		if a == b {
			return a, b
		}
	}
	if first < 0 {
		return "", ""
	}
	return normalizeDiffPath(rest[:first]), normalizeDiffPath(rest[first+1:])
}

func headerPath(token string) string {
	token = strings.TrimSpace(token)
	if token == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(token, "\"") {
		if tokens := diffLineTokens(token); len(tokens) > 0 {
			token = tokens[0]
		}
	}
	return normalizeDiffPath(token)
}

func diffLineTokens(s string) []string {
	var tokens []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}
		if s[0] == '"' {
			var buf strings.Builder
			escaped := false
			i := 1
			for i < len(s) {
				ch := s[i]
				if escaped {
					buf.WriteByte(ch)
					escaped = false
					i++
					continue
				}
				if ch == '\\' {
					escaped = true
					i++
					continue
				}
				if ch == '"' {
					i++
					break
				}
				buf.WriteByte(ch)
				i++
			}
			tokens = append(tokens, buf.String())
			s = s[i:]
			continue
		}
		j := 0
		for j < len(s) && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		tokens = append(tokens, s[:j])
		s = s[j:]
	}
	return tokens
}

func normalizeDiffPath(token string) string {
	token = strings.TrimPrefix(token, "a/")
	token = strings.TrimPrefix(token, "b/")
	return token
}

// untrackedDiff renders a new-file patch for a path git does not track yet.
func untrackedDiff(path string, content []byte) (models.GitFileDiff, error) {
	fd := models.GitFileDiff{Path: path, Status: models.FileAdded}
	header := fmt.Sprintf("diff --git a/%s b/%s\nnew file mode 100644\n", path, path)
	if isBinary(content) {
		fd.Binary = true
		fd.Diff = header + fmt.Sprintf("Binary files /dev/null and b/%s differ\n", path)
		return fd, nil
	}
	if len(content) == 0 {
		fd.Diff = header
		return fd, nil
	}
	ud := difflib.UnifiedDiff{
		A:        []string{},
		B:        difflib.SplitLines(string(content)),
		FromFile: "/dev/null",
		ToFile:   fmt.Sprintf("b/%s", path),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fd, fmt.Errorf("render %s: %w", path, err)
	}
	fd.Diff = header + text
	if !strings.HasSuffix(fd.Diff, "\n") {
		fd.Diff += "\n"
	}
	return fd, nil
}

func isBinary(content []byte) bool {
	if len(content) > binarySniffLen {
		content = content[:binarySniffLen]
	}
	return bytes.IndexByte(content, 0) >= 0
}

func countLines(content []byte) int {
	if len(content) == 0 || isBinary(content) {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// truncatePatch cuts text to at most max bytes on a line boundary.
func truncatePatch(text string, max int) (string, bool) {
	if max <= 0 || len(text) <= max {
		return text, false
	}
	cut := strings.LastIndexByte(text[:max], '\n')
	if cut < 0 {
		cut = max
	} else {
		cut++
	}
	return text[:cut], true
}

// encodeUnifiedPatch renders go-git file patches the way `git diff` prints them.
func encodeUnifiedPatch(filePatches []diff.FilePatch) (string, error) {
	var buf bytes.Buffer
	enc := diff.NewUnifiedEncoder(&buf, diff.DefaultContextLines)
	if err := enc.Encode(filePatchSet{patches: filePatches}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type filePatchSet struct {
	patches []diff.FilePatch
}

func (f filePatchSet) FilePatches() []diff.FilePatch { return f.patches }
func (filePatchSet) Message() string                 { return "" }
