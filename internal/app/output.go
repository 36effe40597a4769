package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/codexmonitor/gitfacade/internal/models"
	"github.com/codexmonitor/gitfacade/internal/server"
)

// Output formats accepted by the CLI.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// WriteResult renders v to w. Markdown is available for status, log and branch lists;
// everything else falls back to JSON.
func WriteResult(w io.Writer, format string, v any) error {
	if strings.EqualFold(format, FormatMarkdown) {
		if rendered, ok := renderMarkdown(v); ok {
			_, err := io.WriteString(w, rendered)
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteError renders err as the same body the remote backend returns.
func WriteError(w io.Writer, err error) error {
	resp, _ := server.NewErrorResponse(err)
	return WriteResult(w, FormatJSON, resp)
}

func renderMarkdown(v any) (string, bool) {
	switch r := v.(type) {
	case models.GitStatus:
		return renderStatus(r), true
	case models.GitLogResponse:
		return renderLog(r), true
	case models.BranchList:
		return renderBranches(r), true
	default:
		return "", false
	}
}

func renderStatus(status models.GitStatus) string {
	var builder strings.Builder

	branch := status.BranchName
	if branch == "" {
		branch = "(detached)"
	}
	builder.WriteString(fmt.Sprintf("On branch %s", sanitizeMarkdownCell(branch)))
	if status.Upstream != "" {
		builder.WriteString(fmt.Sprintf(" tracking %s (ahead %d, behind %d)", status.Upstream, status.Ahead, status.Behind))
	}
	builder.WriteString("\n\n")

	if status.Clean {
		builder.WriteString("Working tree clean.\n")
		return builder.String()
	}

	builder.WriteString("| Path | Status | Staged | + | - |\n")
	builder.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, file := range status.Files {
		path := file.Path
		if file.OldPath != "" {
			path = file.OldPath + " -> " + file.Path
		}
		builder.WriteString(fmt.Sprintf("| %s | %s | %t | %d | %d |\n",
			sanitizeMarkdownCell(path),
			sanitizeMarkdownCell(string(file.Status)),
			file.Staged,
			file.Additions,
			file.Deletions,
		))
	}
	return builder.String()
}

func renderLog(log models.GitLogResponse) string {
	if len(log.Entries) == 0 {
		return "No commits.\n"
	}

	var builder strings.Builder
	builder.WriteString("| Commit | Author | Date | Summary |\n")
	builder.WriteString("| --- | --- | --- | --- |\n")
	for _, entry := range log.Entries {
		sha := entry.SHA
		if len(sha) > 12 {
			sha = sha[:12]
		}
		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			sha,
			sanitizeMarkdownCell(entry.Author),
			entry.Timestamp.Format("2006-01-02 15:04"),
			sanitizeMarkdownCell(entry.Summary),
		))
	}
	return builder.String()
}

func renderBranches(list models.BranchList) string {
	if len(list.Branches) == 0 {
		return "No branches.\n"
	}

	var builder strings.Builder
	builder.WriteString("| Branch | Current | Last commit |\n")
	builder.WriteString("| --- | --- | --- |\n")
	for _, branch := range list.Branches {
		current := ""
		if branch.Current {
			current = "*"
		}
		builder.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			sanitizeMarkdownCell(branch.Name),
			sanitizeMarkdownCell(current),
			branch.LastCommit.Format("2006-01-02 15:04"),
		))
	}
	return builder.String()
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
