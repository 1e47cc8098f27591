package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/testflow"
	"github.com/BaSui01/testflow/browser/selector"
	"github.com/BaSui01/testflow/config"
	"github.com/BaSui01/testflow/internal/server"
)

// =============================================================================
// 🔎 probe 命令
// =============================================================================

const titleScript = "return document.title"

// urlList 支持重复的 --url 参数
type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("url cannot be empty")
	}
	*u = append(*u, v)
	return nil
}

type probeFlags struct {
	configPath  string
	urls        urlList
	selector    string
	timeout     time.Duration
	metricsAddr string
	watch       bool
}

func parseProbeFlags(args []string, output io.Writer) (probeFlags, error) {
	var f probeFlags
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.Var(&f.urls, "url", "Page to open (repeatable)")
	fs.StringVar(&f.selector, "selector", "body", "CSS selector that must become visible")
	fs.DurationVar(&f.timeout, "timeout", 0, "Visibility timeout (0 uses browser.default_timeout)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics on this address while probing")
	fs.BoolVar(&f.watch, "watch", false, "Reload breakpoint switches when the config file changes")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if len(f.urls) == 0 {
		return f, errors.New("at least one --url is required")
	}
	if f.selector == "" {
		return f, errors.New("--selector cannot be empty")
	}
	if f.watch && f.configPath == "" {
		return f, errors.New("--watch requires --config")
	}
	return f, nil
}

// probeResult 单个 URL 的探测结果
type probeResult struct {
	URL      string
	Session  string
	Title    string
	Duration time.Duration
	Err      error
}

func runProbeCommand(args []string) int {
	f, err := parseProbeFlags(args, os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		}
		return 2
	}

	cfg, err := config.NewLoader().
		WithConfigPath(f.configPath).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
		cfg.Metrics.Enabled = true
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting probe",
		zap.String("version", Version),
		zap.Strings("urls", f.urls),
		zap.String("selector", f.selector),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := testflow.New(ctx, cfg, testflow.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build runtime", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logger.Warn("runtime close reported errors", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		srv := server.NewManager(server.Handler(rt.Gatherer()), srvCfg, logger)
		if err := srv.Start(); err != nil {
			logger.Error("failed to start metrics server", zap.Error(err))
			return 1
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	if f.watch {
		reloader, err := rt.WatchConfig(ctx, f.configPath)
		if err != nil {
			logger.Error("failed to watch config", zap.Error(err))
			return 1
		}
		defer reloader.Stop()
	}

	results := runProbe(ctx, rt, f.urls, f.selector, f.timeout)
	if failed := printResults(os.Stdout, results); failed > 0 {
		return 1
	}
	return 0
}

// runProbe 为每个 URL 创建独立会话并发执行；单个失败不会取消其它探测
func runProbe(ctx context.Context, rt *testflow.Runtime, urls []string, sel string, timeout time.Duration) []probeResult {
	results := make([]probeResult, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			results[i] = probeOne(ctx, rt, fmt.Sprintf("probe-%d", i+1), u, sel, timeout)
			return results[i].Err
		})
	}
	_ = g.Wait()
	return results
}

func probeOne(ctx context.Context, rt *testflow.Runtime, id, url, sel string, timeout time.Duration) probeResult {
	res := probeResult{URL: url, Session: id}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	s, err := rt.Session(ctx, id)
	if err != nil {
		res.Err = err
		return res
	}
	if _, err := s.OpenPage(ctx, url, 0).Wait(); err != nil {
		res.Err = err
		return res
	}
	if _, err := s.WaitForVisible(ctx, selector.CSS(sel), timeout).
		IfError(fmt.Sprintf("%s never became visible on %s", sel, url)).
		Wait(); err != nil {
		res.Err = err
		return res
	}
	if title, err := s.Execute(ctx, titleScript).Wait(); err == nil {
		if t, ok := title.(string); ok {
			res.Title = t
		}
	}
	res.Duration = time.Since(start)
	return res
}

// printResults 打印结果并返回失败数量
func printResults(w io.Writer, results []probeResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s  (%s)  %v\n", r.URL, r.Duration.Round(time.Millisecond), r.Err)
			continue
		}
		title := r.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "OK    %s  (%s)  %s\n", r.URL, r.Duration.Round(time.Millisecond), title)
	}
	fmt.Fprintf(w, "%d passed, %d failed\n", len(results)-failed, failed)
	return failed
}
