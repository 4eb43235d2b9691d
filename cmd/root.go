package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bennycortese/graphite-control-plane/internal/config"
	"github.com/bennycortese/graphite-control-plane/internal/core"
	"github.com/bennycortese/graphite-control-plane/internal/logs"
	"github.com/bennycortese/graphite-control-plane/internal/tui"
)

var (
	repoDir    string
	configPath string
	verbose    bool
	noWatch    bool

	cfg config.Config
)

// rootCmd runs the stack view when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "stackdeck",
	Short: "Interactive view of a Graphite branch stack.",
	Long: `stackdeck shows the gt stack of the current repository. Check out, reorder,
squash and drop commits, and run sync, submit and restack without leaving it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = c
		_, err = logs.Init(logs.Options{
			Level:   cfg.LogLevel,
			Verbose: verbose || cmd.Name() == "serve",
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logs.Close()
	},
	RunE: runView,
}

// Execute is called by main.go to run the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&repoDir, "repo", ".", "Repository to operate on")
	flags.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/stackdeck/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Also log to stderr")
	flags.BoolVar(&noWatch, "no-watch", false, "Do not refresh when the repository changes")

	rootCmd.AddCommand(newServeCmd())
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if noWatch {
		c.Watch = false
	}
	return c, nil
}

func runView(cmd *cobra.Command, args []string) error {
	shell := tui.NewShell()
	st, err := openStack(shell)
	if err != nil {
		return err
	}
	defer st.Close()

	p := tea.NewProgram(
		tui.New(core.SenderFunc(st.host.Handle)),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	shell.Attach(p)
	_, err = p.Run()
	return err
}
