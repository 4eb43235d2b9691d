package forge

import (
	"context"
	"encoding/json"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

type gitLab struct {
	dir string
}

func (g *gitLab) Kind() string { return "gitlab" }

// glabMR mirrors the fields we care about from glab's JSON output.
type glabMR struct {
	IID                         int    `json:"iid"`
	State                       string `json:"state"`
	Draft                       bool   `json:"draft"`
	DetailedMergeStatus         string `json:"detailed_merge_status"`
	BlockingDiscussionsResolved *bool  `json:"blocking_discussions_resolved"`
}

func (g *gitLab) FetchPR(ctx context.Context, branch string) (*model.PRInfo, error) {
	out, err := run(ctx, g.dir,
		"glab", "mr", "list",
		"--source-branch", branch,
		"-F", "json",
	)
	if err != nil {
		return nil, nil
	}
	return parseGitLab(out), nil
}

func parseGitLab(out []byte) *model.PRInfo {
	var mrs []glabMR
	if err := json.Unmarshal(out, &mrs); err != nil {
		return nil
	}

	// prefer open MR; fall back to most recent (e.g. merged)
	var found *glabMR
	for i := range mrs {
		if mrs[i].State == "opened" {
			found = &mrs[i]
			break
		}
	}
	if found == nil && len(mrs) > 0 {
		found = &mrs[0]
	}
	if found == nil {
		return nil
	}

	pr := &model.PRInfo{
		Number: found.IID,
		Status: normaliseState(found.State),
	}
	if found.Draft && pr.Status == model.PROpen {
		pr.Status = model.PRDraft
	}
	switch {
	case found.DetailedMergeStatus == "requested_changes":
		pr.ReviewStatus = model.ReviewChangesRequested
	case found.BlockingDiscussionsResolved != nil && !*found.BlockingDiscussionsResolved:
		pr.ReviewStatus = model.ReviewChangesRequested
	case found.DetailedMergeStatus == "not_approved":
		pr.ReviewStatus = model.ReviewRequired
	case found.DetailedMergeStatus == "mergeable":
		pr.ReviewStatus = model.ReviewApproved
	}
	return pr
}

// normaliseState maps GitLab state strings to our unified model.
func normaliseState(s string) string {
	switch s {
	case "opened":
		return model.PROpen
	default:
		return s // "merged", "closed" are already canonical
	}
}
