package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/chat-orchestrator/internal/app"
	"github.com/lexiqai/chat-orchestrator/internal/config"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
)

var (
	flagModel        string
	flagTransport    string
	flagSystemPrompt string
	flagConversation string
	flagVerbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the booking assistant from the terminal",
	Long: `chat runs conversational turns against the configured model, executing
booking tools locally. Configuration is read from the environment and .env,
the same way the server reads it.

Examples:
  chat ask "What is the status of booking BK123 for John Doe?"
  chat complete --json "Cancel BK456 for Jane Smith"
  chat repl --model llama3.1`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model name (overrides MODEL_NAME)")
	rootCmd.PersistentFlags().StringVar(&flagTransport, "transport", "", "Model transport: http or grpc (overrides MODEL_TRANSPORT)")
	rootCmd.PersistentFlags().StringVar(&flagSystemPrompt, "system", "", "System prompt (overrides SYSTEM_PROMPT)")
	rootCmd.PersistentFlags().StringVarP(&flagConversation, "conversation", "c", "cli", "Conversation id")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log to stderr at debug level")

	rootCmd.AddCommand(askCmd, completeCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadApp reads configuration, applies flag overrides and wires the application
func loadApp() (*app.App, error) {
	overrides := map[string]string{
		"MODEL_NAME":      flagModel,
		"MODEL_TRANSPORT": flagTransport,
		"SYSTEM_PROMPT":   flagSystemPrompt,
	}
	for key, value := range overrides {
		if value != "" {
			os.Setenv(key, value)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	observability.SetOutput(os.Stderr, level, true)

	return app.Build(cfg)
}
