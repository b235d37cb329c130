package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/halim/aria/internal/config"
	"github.com/halim/aria/internal/metrics"
	"github.com/halim/aria/internal/tracing"
	"github.com/halim/aria/pkg/conversation"
	"github.com/halim/aria/pkg/credential"
	"github.com/halim/aria/pkg/orchestrator"
	"github.com/halim/aria/pkg/security"
	"github.com/halim/aria/pkg/tools"
)

var (
	runContinue  bool
	runResume    string
	runProvider  string
	runModel     string
	runSystem    string
	runBudget    int
	runMaxIter   int
	runNoTools   bool
	runAllowExec bool
	runYes       bool
	runRoots     []string
	runServers   []string
	runAttach    []string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run one conversational turn",
	Long: `Run one conversational turn: send the prompt to the model, execute
any tools it requests, and print the final answer. The exchange is saved
under the data directory so it can be continued later.

The prompt is taken from the arguments, or from stdin when none are given.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "continue the most recent conversation")
	runCmd.Flags().StringVarP(&runResume, "resume", "r", "", "resume a conversation by index, id, or id prefix")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "model provider (anthropic, openai)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model to use")
	runCmd.Flags().StringVar(&runSystem, "system", "", "system prompt override")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "context budget in characters")
	runCmd.Flags().IntVar(&runMaxIter, "max-iterations", 0, "tool loop iteration limit")
	runCmd.Flags().BoolVar(&runNoTools, "no-tools", false, "disable all tool use for this turn")
	runCmd.Flags().BoolVar(&runAllowExec, "allow-commands", false, "enable the execute_command tool")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "skip command confirmation prompts")
	runCmd.Flags().StringArrayVar(&runRoots, "root", nil, "directory file tools may access (repeatable)")
	runCmd.Flags().StringArrayVar(&runServers, "server", nil, "tool server address (repeatable)")
	runCmd.Flags().StringArrayVar(&runAttach, "attach", nil, "attach a file to the prompt (repeatable)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	lg, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer lg.Close()

	m := metrics.NewMetrics()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, m)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := credential.NewPool(cfg.Credentials)
	if err != nil {
		return err
	}
	store, err := conversation.NewStore(cfg.ConversationsDir())
	if err != nil {
		return err
	}

	conv, preferred, err := resolveConversation(store, cfg, prompt)
	if err != nil {
		return err
	}
	if len(conv.Messages) == 0 {
		m.ConversationsTotal.Inc()
	}

	registry, cleanup, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:            cfg.Provider,
		Model:               cfg.Model,
		SystemPrompt:        cfg.SystemPrompt,
		MaxTokens:           cfg.MaxTokens,
		Temperature:         cfg.Temperature,
		ContextBudget:       cfg.ContextBudget,
		MaxIterations:       cfg.MaxIterations,
		PreferredCredential: preferred,
		ToolTimeout:         time.Duration(cfg.Tools.CallTimeoutSeconds) * time.Second,
	}, pool, store, registry, m)
	if err != nil {
		return err
	}

	ctx = tracing.WithTurnID(ctx, tracing.NewTurnID())
	ctx = tracing.WithConversationID(ctx, conv.ID)

	msgs := []conversation.Message{conversation.UserText(prompt)}
	for _, path := range runAttach {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("attachment %s: %w", path, err)
		}
		msgs = append(msgs, conversation.UserMedia(abs, mimeType(abs)))
	}

	outcome, err := orch.RunTurn(ctx, conv, msgs...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	if outcome.Aborted {
		fmt.Fprintf(cmd.ErrOrStderr(), "turn aborted after %d iterations (%s); partial progress saved as %s\n",
			outcome.Iterations, outcome.AbortReason, outcome.ConversationID)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s]\n", outcome.ConversationID)
	return nil
}

// readPrompt joins the args, falling back to stdin when no args were given.
func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("empty prompt: pass it as an argument or on stdin")
	}
	return prompt, nil
}

// applyRunFlags lets explicit flags win over the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if runProvider != "" {
		cfg.Provider = runProvider
	}
	if runModel != "" {
		cfg.Model = runModel
	}
	if cmd.Flags().Changed("system") {
		cfg.SystemPrompt = runSystem
	}
	if runBudget > 0 {
		cfg.ContextBudget = runBudget
	}
	if runMaxIter > 0 {
		cfg.MaxIterations = runMaxIter
	}
	if runNoTools {
		cfg.Tools.Enabled = false
	}
	if runAllowExec {
		cfg.Tools.Commands.Enabled = true
	}
	if runYes {
		cfg.Tools.Commands.Confirm = false
	}
	if len(runRoots) > 0 {
		cfg.Tools.AllowedRoots = append(cfg.Tools.AllowedRoots, runRoots...)
	}
	if len(runServers) > 0 {
		cfg.Tools.Servers = append(cfg.Tools.Servers, runServers...)
	}
}

// resolveConversation picks the conversation for this turn and the preferred
// credential index for it, -1 when there is no history to prefer.
func resolveConversation(store *conversation.Store, cfg *config.Config, prompt string) (*conversation.Conversation, int, error) {
	switch {
	case runContinue && runResume != "":
		return nil, 0, errors.New("--continue and --resume are mutually exclusive")
	case runContinue:
		conv, err := store.Latest()
		if err != nil {
			if errors.Is(err, conversation.ErrEmptyStore) {
				return conversation.New(prompt, cfg.Model), -1, nil
			}
			return nil, 0, err
		}
		return conv, conv.KeyIndex, nil
	case runResume != "":
		conv, err := store.Resolve(runResume)
		if err != nil {
			return nil, 0, err
		}
		return conv, conv.KeyIndex, nil
	default:
		return conversation.New(prompt, cfg.Model), -1, nil
	}
}

// buildRegistry assembles the tool registry per policy. A nil registry means
// tool use is off entirely. The returned cleanup closes any tool server
// sessions.
func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, func(), error) {
	noop := func() {}
	if !cfg.Tools.Enabled {
		return nil, noop, nil
	}

	roots := cfg.Tools.AllowedRoots
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, noop, fmt.Errorf("resolve working directory: %w", err)
		}
		roots = []string{cwd}
	}

	sec, err := security.New(security.Config{
		AllowedRoots:    roots,
		MaxFileSize:     cfg.Tools.MaxFileSize,
		AllowWebSearch:  cfg.Search.Enabled,
		AllowCommands:   cfg.Tools.Commands.Enabled,
		CommandTimeout:  time.Duration(cfg.Tools.Commands.TimeoutSeconds) * time.Second,
		ConfirmCommands: cfg.Tools.Commands.Confirm,
	})
	if err != nil {
		return nil, noop, err
	}

	reg := tools.NewRegistry()
	register := func(t tools.Tool) error {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
		return nil
	}

	if err := register(tools.NewReadFile(sec)); err != nil {
		return nil, noop, err
	}
	if err := register(tools.NewWriteFile(sec)); err != nil {
		return nil, noop, err
	}
	if err := register(tools.NewListDirectory(sec)); err != nil {
		return nil, noop, err
	}

	if cfg.Search.Enabled {
		searcher, err := tools.NewSearcher(cfg.Search.Mode, cfg.Search.BraveKey)
		if err != nil {
			return nil, noop, err
		}
		if err := register(tools.NewSearchWeb(sec, searcher)); err != nil {
			return nil, noop, err
		}
	}

	if cfg.Tools.Commands.Enabled {
		var confirm tools.ConfirmFunc
		if cfg.Tools.Commands.Confirm {
			confirm = confirmOnTerminal
		}
		if err := register(tools.NewExecuteCommand(sec, confirm)); err != nil {
			return nil, noop, err
		}
	}

	// Tool server failures degrade to local tools only.
	var sessions []io.Closer
	timeout := time.Duration(cfg.Tools.CallTimeoutSeconds) * time.Second
	for _, address := range cfg.Tools.Servers {
		session, err := tools.RegisterRemote(ctx, reg, address, timeout)
		if err != nil {
			log.Warn().Err(err).Str("address", address).
				Msg("tool server unavailable, continuing without it")
			continue
		}
		sessions = append(sessions, session)
	}
	cleanup := func() {
		for _, s := range sessions {
			s.Close()
		}
	}

	return reg, cleanup, nil
}

// confirmOnTerminal asks on the controlling terminal so the prompt works
// even when stdin carries the piped prompt text.
func confirmOnTerminal(command string) bool {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		// No terminal to ask on; refuse rather than run unattended.
		return false
	}
	defer tty.Close()

	fmt.Fprintf(tty, "run command? %q [y/N] ", command)
	reader := bufio.NewReader(tty)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func serveMetrics(listen string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Warn().Err(err).Str("listen", listen).Msg("metrics endpoint failed")
	}
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
