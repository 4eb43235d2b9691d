package forge

import (
	"context"
	"encoding/json"

	"github.com/bennycortese/graphite-control-plane/internal/model"
)

type gitHub struct {
	dir string
}

func (g *gitHub) Kind() string { return "github" }

// ghPR mirrors the fields we care about from gh's JSON output.
type ghPR struct {
	Number  int    `json:"number"`
	State   string `json:"state"` // "OPEN", "MERGED", "CLOSED"
	IsDraft bool   `json:"isDraft"`
	// ReviewDecision is the overall review state.
	ReviewDecision string `json:"reviewDecision"` // "APPROVED", "CHANGES_REQUESTED", "REVIEW_REQUIRED", ""
}

func (g *gitHub) FetchPR(ctx context.Context, branch string) (*model.PRInfo, error) {
	out, err := run(ctx, g.dir,
		"gh", "pr", "list",
		"--head", branch,
		"--state", "all",
		"--json", "number,state,isDraft,reviewDecision",
	)
	if err != nil {
		return nil, nil
	}
	return parseGitHub(out), nil
}

func parseGitHub(out []byte) *model.PRInfo {
	var prs []ghPR
	if err := json.Unmarshal(out, &prs); err != nil {
		return nil
	}

	// prefer open PR; fall back to most recent
	var found *ghPR
	for i := range prs {
		if prs[i].State == "OPEN" {
			found = &prs[i]
			break
		}
	}
	if found == nil && len(prs) > 0 {
		found = &prs[0]
	}
	if found == nil {
		return nil
	}

	status := ghState(found.State)
	if found.IsDraft && status == model.PROpen {
		status = model.PRDraft
	}
	return &model.PRInfo{
		Number:       found.Number,
		Status:       status,
		ReviewStatus: ghReview(found.ReviewDecision),
	}
}

// ghState maps GitHub PR state strings to our unified model.
func ghState(s string) string {
	switch s {
	case "OPEN":
		return model.PROpen
	case "MERGED":
		return model.PRMerged
	case "CLOSED":
		return model.PRClosed
	default:
		return s
	}
}

func ghReview(s string) string {
	switch s {
	case "APPROVED":
		return model.ReviewApproved
	case "CHANGES_REQUESTED":
		return model.ReviewChangesRequested
	case "REVIEW_REQUIRED":
		return model.ReviewRequired
	default:
		return ""
	}
}
