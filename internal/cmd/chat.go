package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sonarboard/sonarboard/internal/config"
	"github.com/sonarboard/sonarboard/internal/logger"
	"github.com/sonarboard/sonarboard/internal/perplexity"
	"github.com/sonarboard/sonarboard/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	chatModel     string
	chatMaxTokens int
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a one-shot prompt through the client and audit log",
	Long: `Send a single prompt to the Perplexity API from the terminal.
The call is recorded in the same request log the dashboard uses.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the supported model identifiers",
	Run: func(cmd *cobra.Command, args []string) {
		client := perplexity.NewClient("", "", zap.NewNop())
		for _, m := range client.Models() {
			fmt.Println(m)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)

	chatCmd.Flags().StringVar(&chatModel, "model", "", "model identifier (default from config)")
	chatCmd.Flags().IntVar(&chatMaxTokens, "max-tokens", 0, "completion token limit (default from config)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if err := initDirectories(cfg); err != nil {
		return err
	}

	requests := storage.NewRequestStore(cfg.Storage.DataDir, log)
	settings := storage.NewConfigStore(cfg.Storage.DataDir)

	stored, err := settings.Load()
	if err != nil {
		return err
	}
	cfg.Merge(stored)

	client := perplexity.NewClient(cfg.Perplexity.BaseURL, cfg.Perplexity.APIKey, log)

	prompt := strings.Join(args, " ")

	opts := perplexity.ChatOptions{
		Model:       cfg.Perplexity.DefaultModel,
		MaxTokens:   perplexity.Int(cfg.Perplexity.DefaultMaxTokens),
		Temperature: perplexity.Float(cfg.Perplexity.DefaultTemperature),
	}
	if chatModel != "" {
		opts.Model = chatModel
	}
	if chatMaxTokens > 0 {
		opts.MaxTokens = perplexity.Int(chatMaxTokens)
	}

	apiReq := perplexity.NewChatRequest(prompt, opts)
	payload, err := json.Marshal(apiReq)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	requestID, err := requests.LogRequest(apiReq, string(payload))
	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}

	start := time.Now()
	resp, err := client.Send(context.Background(), apiReq)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if recErr := requests.RecordError(requestID, err.Error(), durationMs); recErr != nil {
			log.Error("Failed to record error outcome", zap.Error(recErr))
		}
		return err
	}

	responseJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}
	if err := requests.RecordSuccess(requestID, resp, string(responseJSON), durationMs); err != nil {
		log.Error("Failed to record success outcome", zap.Error(err))
	}

	fmt.Println(resp.Content())

	if len(resp.Citations) > 0 {
		fmt.Println("\nCitations:")
		for i, c := range resp.Citations {
			fmt.Printf("  [%d] %s\n", i+1, c)
		}
	}
	if resp.Usage != nil {
		fmt.Printf("\n%d tokens (%d prompt, %d completion), %dms, request %s\n",
			resp.Usage.TotalTokens,
			resp.Usage.PromptTokens,
			resp.Usage.CompletionTokens,
			durationMs,
			requestID)
	}

	return nil
}
