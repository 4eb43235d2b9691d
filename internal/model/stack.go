package model

// PRInfo holds pull/merge request metadata fetched via gh or glab.
type PRInfo struct {
	Number       int    `json:"number"`                 // GitLab IID or GitHub PR number
	Status       string `json:"status"`                 // "open", "merged", "closed", "draft"
	ReviewStatus string `json:"reviewStatus,omitempty"` // "approved", "changes_requested", "review_required"
}

// PR statuses.
const (
	PROpen   = "open"
	PRMerged = "merged"
	PRClosed = "closed"
	PRDraft  = "draft"
)

// Review statuses.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
	ReviewRequired         = "review_required"
)

// BranchInfo is one branch of the stack as reported by gt.
type BranchInfo struct {
	Name          string  `json:"name"`
	IsCurrent     bool    `json:"isCurrent"`
	IsTrunk       bool    `json:"isTrunk"`
	TimeAgo       string  `json:"timeAgo"`
	CommitSHA     string  `json:"commitSha"`
	CommitMessage string  `json:"commitMessage"`
	PR            *PRInfo `json:"pr,omitempty"`         // nil if no PR found or forge CLI unavailable
	ParentName    string  `json:"parentName,omitempty"` // empty for the last (trunk) entry
}

// StackState is a full snapshot of the stack. Branches are ordered
// child-first, trunk-last.
type StackState struct {
	Trunk         string       `json:"trunk"`
	CurrentBranch string       `json:"currentBranch"`
	Branches      []BranchInfo `json:"branches"`
	LocalCommits  []CommitInfo `json:"localCommits"`
	Error         string       `json:"error,omitempty"`
}

// CommitInfo is a single commit of a branch.
type CommitInfo struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// Action is what the rebase does with a commit.
type Action string

const (
	ActionPick  Action = "pick"
	ActionFixup Action = "fixup"
	ActionDrop  Action = "drop"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionPick, ActionFixup, ActionDrop:
		return true
	}
	return false
}

// CommitAction pairs a commit with the action to take on it.
type CommitAction struct {
	SHA    string `json:"sha"`
	Action Action `json:"action"`
}

// LinkParents sets ParentName on every branch to the name of the next entry
// in the child-first order. The last entry gets no parent.
func LinkParents(branches []BranchInfo) {
	for i := range branches {
		if i+1 < len(branches) {
			branches[i].ParentName = branches[i+1].Name
		} else {
			branches[i].ParentName = ""
		}
	}
}

// Branch returns the branch with the given name, if present.
func (s StackState) Branch(name string) (BranchInfo, bool) {
	for _, b := range s.Branches {
		if b.Name == name {
			return b, true
		}
	}
	return BranchInfo{}, false
}

// Names returns the branch names in snapshot (child-first) order.
func (s StackState) Names() []string {
	names := make([]string, len(s.Branches))
	for i, b := range s.Branches {
		names[i] = b.Name
	}
	return names
}

// ErrorState is the snapshot reported when the stack cannot be read.
func ErrorState(msg string) StackState {
	return StackState{
		Trunk:        "main",
		Branches:     []BranchInfo{},
		LocalCommits: []CommitInfo{},
		Error:        msg,
	}
}
