package git

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/codexmonitor/gitfacade/internal/models"
)

// branchHeader carries the "# branch.*" lines of porcelain v2 output.
type branchHeader struct {
	oid      string
	head     string
	upstream string
	ahead    int
	behind   int
}

// parsePorcelainV2 parses `git status --porcelain=v2 -z --branch` output.
func parsePorcelainV2(raw string) (branchHeader, []models.GitFileStatus, error) {
	var header branchHeader
	var files []models.GitFileStatus

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}
		switch rec[0] {
		case '#':
			parseBranchHeader(&header, rec)
		case '1':
			fields := strings.SplitN(rec, " ", 9)
			if len(fields) != 9 {
				return header, nil, fmt.Errorf("malformed status record %q", rec)
			}
			files = append(files, trackedEntry(fields[1], fields[8], ""))
		case '2':
			fields := strings.SplitN(rec, " ", 10)
			if len(fields) != 10 || i+1 >= len(records) || records[i+1] == "" {
				return header, nil, fmt.Errorf("malformed rename record %q", rec)
			}
			i++
			entry := trackedEntry(fields[1], fields[9], records[i])
			if strings.HasPrefix(fields[8], "C") {
				entry.Status = models.FileCopied
			} else {
				entry.Status = models.FileRenamed
			}
			files = append(files, entry)
		case 'u':
			fields := strings.SplitN(rec, " ", 11)
			if len(fields) != 11 {
				return header, nil, fmt.Errorf("malformed unmerged record %q", rec)
			}
			entry := trackedEntry(fields[1], fields[10], "")
			entry.Status = models.FileConflict
			entry.Staged = false
			entry.Unstaged = true
			files = append(files, entry)
		case '?':
			files = append(files, models.GitFileStatus{
				Path:      strings.TrimPrefix(rec, "? "),
				Status:    models.FileUntracked,
				Index:     "?",
				Worktree:  "?",
				Untracked: true,
			})
		case '!':
			// ignored files are only listed with --ignored
		default:
			return header, nil, fmt.Errorf("unknown status record %q", rec)
		}
	}
	return header, files, nil
}

func parseBranchHeader(h *branchHeader, rec string) {
	fields := strings.Fields(strings.TrimPrefix(rec, "# "))
	if len(fields) < 2 {
		return
	}
	switch fields[0] {
	case "branch.oid":
		h.oid = fields[1]
	case "branch.head":
		h.head = fields[1]
	case "branch.upstream":
		h.upstream = fields[1]
	case "branch.ab":
		if len(fields) == 3 {
			h.ahead, _ = strconv.Atoi(strings.TrimPrefix(fields[1], "+"))
			h.behind, _ = strconv.Atoi(strings.TrimPrefix(fields[2], "-"))
		}
	}
}

func trackedEntry(xy, path, orig string) models.GitFileStatus {
	x, y := ".", "."
	if len(xy) == 2 {
		x, y = xy[:1], xy[1:]
	}
	entry := models.GitFileStatus{
		Path:     path,
		OldPath:  orig,
		Index:    x,
		Worktree: y,
		Staged:   x != ".",
		Unstaged: y != ".",
	}
	code := x
	if code == "." {
		code = y
	}
	switch code {
	case "A":
		entry.Status = models.FileAdded
	case "D":
		entry.Status = models.FileDeleted
	case "R":
		entry.Status = models.FileRenamed
	case "C":
		entry.Status = models.FileCopied
	default:
		entry.Status = models.FileModified
	}
	return entry
}

type lineCounts struct {
	additions int
	deletions int
}

// parseNumstat parses `git diff --numstat -z`. Binary files report no counts.
func parseNumstat(raw string) map[string]lineCounts {
	out := make(map[string]lineCounts)
	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}
		parts := strings.SplitN(rec, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		path := parts[2]
		if path == "" {
			// renames: counts, then old and new path as separate records
			if i+2 >= len(records) {
				break
			}
			path = records[i+2]
			i += 2
		}
		add, _ := strconv.Atoi(parts[0])
		del, _ := strconv.Atoi(parts[1])
		c := out[path]
		c.additions += add
		c.deletions += del
		out[path] = c
	}
	return out
}

// buildStatus merges porcelain entries and line counts into the façade model.
func buildStatus(header branchHeader, files []models.GitFileStatus, staged, unstaged map[string]lineCounts, untrackedLines func(string) int) models.GitStatus {
	status := models.GitStatus{
		BranchName: header.head,
		Upstream:   header.upstream,
		Ahead:      header.ahead,
		Behind:     header.behind,
		Files:      make([]models.GitFileStatus, 0, len(files)),
	}
	if status.BranchName == "(detached)" || status.BranchName == "" {
		status.BranchName = "HEAD"
	}

	for _, f := range files {
		if c, ok := staged[f.Path]; ok {
			f.Additions += c.additions
			f.Deletions += c.deletions
		}
		if c, ok := unstaged[f.Path]; ok {
			f.Additions += c.additions
			f.Deletions += c.deletions
		}
		if f.Untracked && untrackedLines != nil {
			f.Additions = untrackedLines(f.Path)
		}

		if f.Staged {
			status.StagedCount++
		}
		if f.Unstaged {
			status.UnstagedCount++
		}
		if f.Untracked {
			status.UntrackedCount++
		}
		status.TotalAdditions += f.Additions
		status.TotalDeletions += f.Deletions
		status.Files = append(status.Files, f)
	}

	sort.SliceStable(status.Files, func(i, j int) bool { return status.Files[i].Path < status.Files[j].Path })
	status.Clean = len(status.Files) == 0
	return status
}
