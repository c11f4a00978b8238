package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/chat-orchestrator/internal/chat"
	"github.com/lexiqai/chat-orchestrator/internal/orchestrator"
)

var completeJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		resp, err := streamTurn(ctx, a.Orchestrator, cmd.OutOrStdout(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		printUsage(cmd.ErrOrStderr(), resp)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <question>",
	Short: "Ask a question and print the whole answer at once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		resp, err := a.Orchestrator.Complete(ctx, flagConversation, strings.Join(args, " "))
		if err != nil {
			return describe(err)
		}

		if completeJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message.Content)
		printUsage(cmd.ErrOrStderr(), resp)
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "model=%s transport=%s conversation=%s\n", a.Config.ModelName, a.Config.ModelTransport, flagConversation)
		fmt.Fprintln(out, "Type /exit to quit, /clear to reset context.")

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			switch input {
			case "/exit", "exit", "quit":
				return nil
			case "/clear":
				a.Memory.Delete(flagConversation)
				fmt.Fprintln(out, "context cleared")
				continue
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			resp, err := streamTurn(ctx, a.Orchestrator, out, input)
			stop()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}
			printUsage(cmd.ErrOrStderr(), resp)
		}
	},
}

func init() {
	completeCmd.Flags().BoolVar(&completeJSON, "json", false, "Print the full response as JSON")
}

// streamTurn writes tokens to out as they arrive and returns the final response
func streamTurn(ctx context.Context, o *orchestrator.Orchestrator, out io.Writer, question string) (*chat.Response, error) {
	var (
		resp    *chat.Response
		turnErr error
	)
	o.RunTurn(ctx, flagConversation, question, orchestrator.Handler{
		OnToken: func(text string) {
			fmt.Fprint(out, text)
		},
		OnComplete: func(r *chat.Response) {
			resp = r
		},
		OnError: func(err error) {
			turnErr = err
		},
	})
	fmt.Fprintln(out)

	if turnErr != nil {
		return nil, describe(turnErr)
	}
	return resp, nil
}

func describe(err error) error {
	kind := chat.ErrorKind(err)
	if kind == "" || kind == "internal" {
		return err
	}
	return fmt.Errorf("%s: %w", kind, err)
}

func printUsage(w io.Writer, resp *chat.Response) {
	if resp == nil || !flagVerbose {
		return
	}
	fmt.Fprintf(w, "[tokens: prompt=%d completion=%d total=%d]\n",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Total())
}
