package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/recruitops/talentclaw/internal/agent"
	"github.com/recruitops/talentclaw/internal/backend"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/gateway"
	"github.com/recruitops/talentclaw/internal/llm"
	"github.com/recruitops/talentclaw/internal/session"
	"github.com/recruitops/talentclaw/internal/skills"
	"github.com/spf13/cobra"
)

// AgentOptions carry injectable dependencies for testing the agent command.
type AgentOptions struct {
	Client llm.Client
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "talentclaw",
	Short: "talentclaw - AI assistant for recruiting and email campaigns",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the agent in single message or REPL mode",
	RunE:  runAgent,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (web UI + telegram + scheduler)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show talentclaw status",
	RunE:  runStatus,
}

var (
	messageFlag string
	modelFlag   string
)

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	agentCmd.Flags().StringVar(&modelFlag, "model", "", "Override the completion model")
	rootCmd.AddCommand(agentCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

// runAgentWithOptions builds the minimal agent stack (no channels, no
// scheduler) and runs it against stdin/stdout.
func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := opts.Client
	if client == nil {
		if cfg.Provider.APIKey == "" {
			return fmt.Errorf("API key not set. Run 'talentclaw onboard' or set TALENTCLAW_API_KEY")
		}
	}

	dbPath := cfg.Sessions.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "sessions.db")
	}
	store, err := session.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	api := backend.NewClient(cfg.Backend.BaseURL)
	registry := skills.NewRegistry()
	for _, sk := range []interface{ Register(*skills.Registry) error }{
		skills.NewCandidateSkill(api),
		skills.NewScheduleSkill(api),
		skills.NewEmailSkill(api),
	} {
		if err := sk.Register(registry); err != nil {
			return fmt.Errorf("register skills: %w", err)
		}
	}

	packsDir := cfg.Agent.PromptPacksDir
	if packsDir == "" {
		packsDir = filepath.Join(config.ConfigDir(), "skills")
	}
	packs, err := skills.LoadPromptPacks(packsDir)
	if err != nil {
		fmt.Fprintf(stderrOr(opts.Stderr), "warning: prompt packs: %v\n", err)
	}

	if client == nil {
		client = llm.NewClient(cfg, registry.Catalog())
	}
	orch := agent.NewOrchestrator(store, registry, client, packs)

	model := modelFlag
	if model == "" {
		model = cfg.Agent.Model
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := stderrOr(opts.Stderr)

	ctx := context.Background()

	turn := func(input string) {
		targetID, err := orch.SendMessage(ctx, "", input, model)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return
		}
		sess, err := store.GetSession(targetID)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return
		}
		last := sess.Messages[len(sess.Messages)-1]
		fmt.Fprintln(stdout, last.Content)
	}

	if messageFlag != "" {
		turn(messageFlag)
		return nil
	}

	fmt.Fprintln(stdout, "talentclaw agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		turn(input)
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'talentclaw onboard' or set TALENTCLAW_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(filepath.Join(cfgDir, "data"), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfgDir, "skills"), 0755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and backend URL\n", cfgPath)
	fmt.Println("  2. Or set TALENTCLAW_API_KEY / TALENTCLAW_BACKEND_URL")
	fmt.Println("  3. Run 'talentclaw agent -m \"list candidates\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", cfg.Provider.BaseURL)
	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("WebUI: enabled=%v port=%d\n", cfg.Channels.WebUI.Enabled, cfg.Gateway.Port)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	dbPath := cfg.Sessions.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "sessions.db")
	}
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf("Sessions: %s (%d bytes)\n", dbPath, info.Size())
	} else {
		fmt.Println("Sessions: no database yet")
	}

	return nil
}

func stderrOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}
