package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/internal/metrics"
)

// runDispatch dispatches without an HTTP server. A single message goes
// through the conversation service, so it continues and persists the
// conversation. A batch goes straight to the orchestrator, concurrently.
func runDispatch(args []string) error {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	message := fs.String("message", "", "Message to dispatch")
	conversationID := fs.String("conversation", "", "Conversation to continue")
	entry := fs.String("entry", "", "Entry responder override")
	batch := fs.String("batch", "", "JSON file of requests, or - for stdin")
	_ = fs.Parse(args)

	if (*message == "") == (*batch == "") {
		return errors.New("exactly one of --message or --batch is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout carries the results
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, metrics.NewCollector("switchboard", logger), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if *batch != "" {
		reqs, err := readBatchFile(*batch)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, app.orchestrator.HandleAll(ctx, reqs))
	}

	result, err := app.conversations.HandleMessage(ctx, agent.DispatchRequest{
		ConversationID: *conversationID,
		CurrentMessage: *message,
		EntryAgent:     *entry,
	})
	if err != nil {
		if result.ConversationID == "" {
			return err
		}
		// the reply is still valid when only persistence failed
		logger.Warn("conversation not persisted", zap.Error(err))
	}
	return writeJSON(os.Stdout, result)
}

func readBatchFile(path string) ([]agent.DispatchRequest, error) {
	if path == "-" {
		return readBatch(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readBatch(f)
}

// readBatch decodes a JSON array of requests. Every request needs a
// message, and a conversation may appear only once.
func readBatch(r io.Reader) ([]agent.DispatchRequest, error) {
	var reqs []agent.DispatchRequest
	if err := json.NewDecoder(r).Decode(&reqs); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if len(reqs) == 0 {
		return nil, errors.New("batch is empty")
	}

	seen := make(map[string]int, len(reqs))
	for i, req := range reqs {
		if strings.TrimSpace(req.CurrentMessage) == "" {
			return nil, fmt.Errorf("request %d: current_message is required", i)
		}
		if req.ConversationID == "" {
			continue
		}
		if j, dup := seen[req.ConversationID]; dup {
			return nil, fmt.Errorf("request %d: conversation %q already appears in request %d", i, req.ConversationID, j)
		}
		seen[req.ConversationID] = i
	}
	return reqs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
