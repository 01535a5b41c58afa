package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"data-explorer-be/internal/config"
	"data-explorer-be/internal/dto"
	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/internal/repository/memory"
	"data-explorer-be/internal/service"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/events"
	"data-explorer-be/pkg/llm/factory"
	pktNats "data-explorer-be/pkg/nats"
	"data-explorer-be/pkg/report"
	"data-explorer-be/pkg/sandbox"

	"github.com/fatih/color"
)

const usage = `Commands:
  :profile              show the dataset profile
  :history              list previous turns
  :export <fmt> <path>  write csv, xlsx or md
  :quit                 exit
Anything else is sent as a question.`

func main() {
	file := flag.String("file", "", "CSV or XLSX file to explore")
	watch := flag.Bool("watch", false, "print explorer events from NATS instead of starting a session")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watch {
		if err := watchEvents(ctx, cfg.App.NatsURL); err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if *file == "" {
		color.Red("Usage: explore -file data.csv")
		os.Exit(2)
	}
	if err := repl(ctx, cfg, *file); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
}

func repl(ctx context.Context, cfg *config.Config, path string) error {
	provider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.LLMBaseURL(),
		APIKey:   cfg.APIKeyFor(cfg.Ai.LLMProvider),
		Timeout:  cfg.Ai.LLMTimeout,
	})
	if err != nil {
		return err
	}

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.Timeout = cfg.Agent.SandboxTimeout
	explorer := agent.New(provider, sandbox.NewSQLite(sandboxCfg),
		agent.WithMaxAttempts(cfg.Agent.MaxAttempts),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithModelTimeout(cfg.Ai.LLMTimeout),
		agent.WithObserver(func(tr agent.Transition) {
			color.HiBlack("  %s -> %s", tr.From, tr.To)
		}),
	)
	svc := service.NewExplorerService(
		memory.NewSessionRepository(cfg.Session.TTL),
		explorer,
		report.NewGenerator(provider, cfg.Ai.LLMTimeout),
		nil,
		nil,
		logger.NewNopLogger(),
	)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	up, err := svc.Upload(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return err
	}

	color.Cyan("Loaded %s: %d rows, %d columns (%s)", up.Filename, up.TotalRows, len(up.Columns), cfg.Ai.LLMProvider)
	fmt.Println(usage)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		color.New(color.FgYellow, color.Bold).Print("\n> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if done := command(ctx, svc, up.DataId, line); done {
				return nil
			}
			continue
		}

		res, err := svc.Query(ctx, &dto.QueryRequest{DataId: up.DataId, Query: line})
		if err != nil {
			color.Red("Failed: %v", err)
			continue
		}
		printTurn(res)
	}
}

func command(ctx context.Context, svc service.IExplorerService, id, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":profile":
		p, err := svc.Profile(ctx, id)
		if err != nil {
			color.Red("Failed: %v", err)
			return false
		}
		prettyPrint(p)
	case ":history":
		h, err := svc.History(ctx, id)
		if err != nil {
			color.Red("Failed: %v", err)
			return false
		}
		for i, it := range h.History {
			color.Green("%d. %s", i+1, it.Query)
			if it.Explanation != "" {
				fmt.Println("   " + it.Explanation)
			}
		}
	case ":export":
		if len(fields) != 3 {
			color.Red("Usage: :export <csv|xlsx|md> <path>")
			return false
		}
		out, err := svc.Export(ctx, id, fields[1])
		if err != nil {
			color.Red("Failed: %v", err)
			return false
		}
		if err := os.WriteFile(fields[2], out.Body, 0o644); err != nil {
			color.Red("Failed: %v", err)
			return false
		}
		color.Green("Wrote %s", fields[2])
	default:
		fmt.Println(usage)
	}
	return false
}

func printTurn(res *dto.QueryResponse) {
	color.Magenta("[%s, %d attempt(s)]", res.Classification, res.Attempts)
	if res.Explanation != "" {
		fmt.Println(res.Explanation)
	}
	if res.Error != "" {
		color.Red("Error: %s", res.Error)
	}
	if res.DatasetView != nil {
		ds, err := dataset.FromRecords(dataset.Records{
			Columns:     res.Columns,
			ColumnTypes: res.ColumnTypes,
			Rows:        res.Dataframe,
		})
		if err == nil {
			fmt.Println(ds.Head(10).String())
		}
	}
	for _, c := range res.Charts {
		color.Blue("Chart: %s over %s", c.Type, strings.Join(c.Columns(), ", "))
	}
	for _, s := range res.Suggestions {
		color.Cyan("- %s", s.Query)
	}
	if res.Insight != nil {
		color.HiGreen("Insight: %s", res.Insight.Insight)
		if res.Insight.FollowUpQuery != "" {
			color.Cyan("Try next: %s", res.Insight.FollowUpQuery)
		}
	}
}

func watchEvents(ctx context.Context, url string) error {
	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	stopSub, err := sub.Subscribe(ctx, pktNats.SubjectPrefix+".>", "", func(_ context.Context, e events.Event) error {
		color.Yellow("[%s] %s %s", e.Timestamp().Format("15:04:05"), e.EventType(), e.SessionID())
		prettyPrint(e.Payload())
		return nil
	})
	if err != nil {
		return err
	}
	defer stopSub()

	color.Cyan("Watching %s.> on %s", pktNats.SubjectPrefix, url)
	<-ctx.Done()
	return nil
}

func prettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(b))
}
