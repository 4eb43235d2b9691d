package cmd

import (
	"github.com/bennycortese/graphite-control-plane/internal/forge"
	"github.com/bennycortese/graphite-control-plane/internal/git"
	"github.com/bennycortese/graphite-control-plane/internal/gt"
	"github.com/bennycortese/graphite-control-plane/internal/host"
	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/watch"
)

// shell is whatever presents host output: the TUI or the websocket hub.
type shell interface {
	host.Pusher
	host.Notifier
	host.Prompter
}

// stack is a host wired to the repository in repoDir.
type stack struct {
	host    *host.Host
	watcher *watch.Watcher
}

func openStack(sh shell) (*stack, error) {
	repo, err := git.Open(repoDir)
	if err != nil {
		return nil, err
	}
	repo.GitPath = cfg.GitPath
	repo.Timeout = cfg.CommandTimeout
	root := repo.Root()
	logs.Info().Str("repo", root).Msg("opened repository")

	var prs host.PRLookup
	if cfg.PullRequests {
		if f := forge.Detect(root); f != nil {
			logs.Info().Str("forge", f.Kind()).Msg("pull request lookup enabled")
			prs = f
		}
	}

	h := host.New(host.Options{
		Stack:    &gt.Client{Path: cfg.GtPath, Dir: root, Timeout: cfg.CommandTimeout},
		Repo:     repo,
		PRs:      prs,
		Pusher:   sh,
		Notifier: sh,
		Prompter: sh,
	})
	st := &stack{host: h}

	if cfg.Watch {
		w, err := watch.Start(root, watch.Delay, h.Refresh)
		if err != nil {
			logs.Warn().Err(err).Msg("auto refresh disabled")
		} else {
			st.watcher = w
		}
	}
	return st, nil
}

// Close stops watching and cancels running commands.
func (s *stack) Close() {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logs.Warn().Err(err).Msg("close watcher")
		}
	}
	s.host.Close()
}
