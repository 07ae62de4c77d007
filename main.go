package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admissions-agent/agent"
	"admissions-agent/calllog"
	"admissions-agent/config"
	"admissions-agent/knowledge"
	"admissions-agent/llmclient"
	"admissions-agent/session"
	"admissions-agent/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "admissions-agent",
	Short: "IST admissions voice assistant",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voice call web server",
	RunE:  runServe,
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run an interactive text-mode call in the terminal",
	RunE:  runCall,
}

var ingestCheckCmd = &cobra.Command{
	Use:   "ingest-check",
	Short: "Load the knowledge base and report what was found",
	RunE:  runIngestCheck,
}

func init() {
	rootCmd.AddCommand(serveCmd, callCmd, ingestCheckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps is everything a command needs after bootstrap.
type deps struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    *llmclient.Client
	retriever *knowledge.Retriever
	agent     *agent.Agent
	sessions  *session.Store
	logs      *calllog.Store
}

func bootstrap(ctx context.Context) (*deps, error) {
	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to re-initialize logger with configured level: %w", err)
	}

	client := llmclient.New(cfg, logger)

	retriever := knowledge.NewRetriever(cfg, client, logger)
	retriever.SetKnowledgeBase(ctx, knowledge.Load(cfg, logger))

	logs, err := calllog.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		retriever: retriever,
		agent:     agent.New(cfg, retriever, client, logger),
		sessions:  session.NewStore(cfg, logger),
		logs:      logs,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer config.Cleanup()

	server, err := web.NewServer(d.cfg, d.agent, d.sessions, d.client, d.logs, d.retriever, d.logger)
	if err != nil {
		d.logger.Error("Failed to initialize web server", zap.Error(err))
		return err
	}

	go d.sessions.RunExpiry(ctx, server.Handler().PersistExpired)

	if err := server.Start(ctx); err != nil {
		d.logger.Error("Web server error", zap.Error(err))
		return err
	}
	return nil
}

func runIngestCheck(cmd *cobra.Command, args []string) error {
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer config.Cleanup()

	cfg := config.Load(tempLogger)
	kb := knowledge.Load(cfg, tempLogger)

	fmt.Printf("data dir: %s\n", cfg.DataDir)
	for key, value := range knowledge.DataDirStatus(cfg) {
		fmt.Printf("%s: %v\n", key, value)
	}
	fmt.Printf("documents loaded: %d\n", kb.Len())
	for _, doc := range kb.Documents() {
		fmt.Printf("  %s  %-40s  %6d chars  (%s)\n", doc.ID, doc.Title, len(doc.Text), doc.Source)
	}
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer config.Cleanup()

	sess := d.sessions.Create()
	fmt.Println("Agent:", agent.GreetingText)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		utterance := strings.TrimSpace(scanner.Text())
		if !session.IsMeaningful(utterance) {
			fmt.Println("Agent:", agent.RepeatPrompt)
			continue
		}
		if session.WantsToEndCall(utterance) {
			fmt.Println("Agent:", agent.GoodbyeText)
			break
		}

		current, err := d.sessions.Get(sess.ID)
		if err != nil {
			return err
		}

		if current.LastReplyEscalated() && session.LooksLikePhoneNumber(utterance) {
			phone := session.NormalizePhone(utterance)
			if err := d.sessions.SetPhone(sess.ID, phone); err != nil {
				return err
			}
			if err := d.logs.AttachPhone(phone); err != nil {
				d.logger.Error("Failed to attach callback number", zap.Error(err))
			}
			fmt.Println("Agent:", agent.PhoneAckText)
			if err := d.sessions.AppendTurn(sess.ID, utterance, agent.PhoneAckText, false); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		reply, err := d.agent.Respond(ctx, utterance, current.LastExchange())
		elapsed := time.Since(start)
		if err != nil {
			d.logger.Error("Turn pipeline degraded", zap.Error(err))
		}

		if reply.Escalated {
			if err := d.logs.AppendEscalation(utterance); err != nil {
				d.logger.Error("Failed to record escalation", zap.Error(err))
			}
		}

		fmt.Println("Agent:", reply.Text)
		fmt.Printf("  (%.2fs)\n", elapsed.Seconds())

		if err := d.sessions.AppendTurn(sess.ID, utterance, reply.Text, reply.Escalated); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	final, err := d.sessions.Remove(sess.ID)
	if err != nil {
		return err
	}
	if len(final.Turns) > 0 {
		record := calllog.CallRecord{
			CallID:      final.ID,
			StartTime:   final.StartedAt,
			EndTime:     time.Now(),
			Escalated:   final.Escalated,
			PhoneNumber: final.Phone,
		}
		for _, t := range final.Turns {
			record.Turns = append(record.Turns, calllog.RecordedTurn{User: t.Caller, Agent: t.Agent})
		}
		if err := d.logs.AppendCallRecord(record); err != nil {
			d.logger.Error("Failed to persist call record", zap.Error(err))
		}
	}
	return nil
}
