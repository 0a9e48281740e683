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
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	oracle "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
)

// =============================================================================
// 🗣️ run 命令
// =============================================================================

func runDebate(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	factsPath := fs.String("facts", "", "Facts JSON file")
	batchDir := fs.String("batch", "", "Directory of facts JSON files")
	outPath := fs.String("out", "", "Output file (single) or directory (batch)")
	maxRounds := fs.Int("max-rounds", 0, "Override debate.max_rounds")
	_ = fs.Parse(args)

	if (*factsPath == "") == (*batchDir == "") {
		return errors.New("exactly one of --facts or --batch is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	engine, err := oracle.New(cfg, oracle.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *factsPath != "" {
		result, err := runFactsFile(ctx, engine, *factsPath, *maxRounds)
		if err != nil {
			return err
		}
		return writeResult(*outPath, result)
	}
	return runBatch(ctx, engine, *batchDir, *outPath, *maxRounds, cfg.Server.MaxConcurrentDebates, logger)
}

// runBatch 并发执行目录下所有 facts 文件, 并发度受 limit 约束.
// 单个会话失败不会中断其它会话.
func runBatch(ctx context.Context, engine *oracle.Engine, dir, outDir string, maxRounds, limit int, logger *zap.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no facts files in %s", dir)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	failures := make([]error, len(files))
	for i, file := range files {
		g.Go(func() error {
			result, err := runFactsFile(ctx, engine, file, maxRounds)
			if err != nil {
				logger.Error("debate failed", zap.String("file", file), zap.Error(err))
				failures[i] = fmt.Errorf("%s: %w", filepath.Base(file), err)
				return nil
			}
			out := ""
			if outDir != "" {
				out = filepath.Join(outDir, strings.TrimSuffix(filepath.Base(file), ".json")+".result.json")
			}
			if err := writeResult(out, result); err != nil {
				failures[i] = err
			}
			logger.Info("debate finished",
				zap.String("file", file),
				zap.String("session_id", result.SessionID),
				zap.String("verdict", result.FinalVerdict),
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

func runFactsFile(ctx context.Context, engine *oracle.Engine, path string, maxRounds int) (*debate.DebateResult, error) {
	facts, err := readFacts(path)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, &debate.Request{Facts: facts, MaxRounds: maxRounds})
}

func readFacts(path string) (*debate.Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	var facts debate.Facts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("parse facts %s: %w", path, err)
	}
	return &facts, nil
}

// writeResult 写入结果, path 为空时输出到 stdout
func writeResult(path string, result *debate.DebateResult) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
