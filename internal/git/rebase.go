package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/model"
)

// TodoList renders actions as an interactive rebase todo list. A fixup in
// first position has nothing to fold into and is turned into a pick.
func TodoList(actions []model.CommitAction) string {
	var b strings.Builder
	leading := true
	for _, a := range actions {
		action := a.Action
		if !action.Valid() {
			action = model.ActionPick
		}
		if leading && action == model.ActionFixup {
			logs.Warn().Str("sha", a.SHA).Msg("leading fixup rebased as pick")
			action = model.ActionPick
		}
		if action != model.ActionDrop {
			leading = false
		}
		fmt.Fprintf(&b, "%s %s\n", action, a.SHA)
	}
	return b.String()
}

// Rebase rewrites branch on top of parent following actions. An empty
// parent rebases from the root commit. A failed rebase is aborted. The
// branch checked out beforehand is checked out again afterwards.
func (r *Repo) Rebase(ctx context.Context, branch, parent string, actions []model.CommitAction) error {
	f, err := os.CreateTemp("", "stackdeck-todo-*")
	if err != nil {
		return fmt.Errorf("create todo: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(TodoList(actions)); err != nil {
		f.Close()
		return fmt.Errorf("write todo: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write todo: %w", err)
	}

	previous, _ := r.CurrentBranch()

	args := []string{"rebase", "-i"}
	if parent == "" {
		args = append(args, "--root")
	} else {
		args = append(args, parent)
	}
	args = append(args, branch)

	env := []string{
		"GIT_SEQUENCE_EDITOR=cp " + shellQuote(f.Name()),
		"GIT_EDITOR=true",
	}
	if _, err := r.run(ctx, env, args...); err != nil {
		if _, abortErr := r.run(context.Background(), nil, "rebase", "--abort"); abortErr != nil {
			logs.Warn().Err(abortErr).Msg("rebase --abort failed")
		}
		if restoreErr := r.restore(context.Background(), previous, branch); restoreErr != nil {
			logs.Warn().Err(restoreErr).Msg("restore after failed rebase")
		}
		return fmt.Errorf("rebase %s: %w", branch, err)
	}
	return r.restore(ctx, previous, branch)
}

func (r *Repo) restore(ctx context.Context, previous, rebased string) error {
	if previous == "" || previous == rebased {
		return nil
	}
	if _, err := r.run(ctx, nil, "checkout", previous); err != nil {
		return fmt.Errorf("restore %s: %w", previous, err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
