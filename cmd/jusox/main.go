package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/jusox/internal/app/run"
	"github.com/John-Robertt/jusox/internal/config"
	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/export"
	"github.com/John-Robertt/jusox/internal/infra/fsx"
	"github.com/John-Robertt/jusox/internal/input"
	"github.com/John-Robertt/jusox/internal/metrics"
	"github.com/John-Robertt/jusox/internal/server"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	// Ctrl-C：正在进行的查询以 canceled 结束，批次照常产出报告。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch args[0] {
	case "run":
		code = runCmd(ctx, args[1:])
	case "resolve":
		code = resolveCmd(ctx, args[1:])
	case "serve":
		code = serveCmd(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		stop()
		os.Exit(code)
	}
}

func runCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseArgs("run", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}
	if ra.Input == "" && isTTY(os.Stdin) {
		fmt.Fprintf(os.Stderr, "参数错误：缺少输入文件（或用 - 从 stdin 读取）\n\n")
		printRunUsage()
		return 2
	}
	inputName := ra.Input
	if inputName == "" {
		inputName = input.Stdin
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ra.cliArgs())
	if err != nil {
		emitReport(syntheticReport(inputName, ra.Language, config.Code(err), err.Error()))
		return 1
	}

	logger := newLogger(os.Stderr, eff.LogLevel, eff.LogFormat, slog.LevelWarn)
	st, err := buildStack(ctx, eff, logger, nil)
	if err != nil {
		emitReport(syntheticReport(inputName, string(eff.Language), config.Code(err), err.Error()))
		return 1
	}
	defer st.Close()

	lines, err := input.ReadFile(ra.Input, os.Stdin)
	if err != nil {
		emitReport(syntheticReport(inputName, string(eff.Language), domain.ErrCodeInputFailed, err.Error()))
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, st.pipeline, lines, obs)
	rr.Input = inputName

	if ra.Out != "" {
		if err := export.WriteCSVFile(ra.Out, rr.Rows); err != nil {
			if fsx.IsPathTypeConflict(err) {
				fmt.Fprintf(os.Stderr, "写入 %s 失败：目标已存在且是目录\n", ra.Out)
			} else {
				fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", ra.Out, err)
			}
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive && ra.Out != "" {
		if abs, err := filepath.Abs(ra.Out); err == nil {
			fmt.Fprintf(progressW, "csv: %s\n", abs)
		}
	}
	if rr.Summary.Err == 0 {
		return 0
	}
	return 1
}

func resolveCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printResolveUsage()
			return 0
		}
	}

	ra, err := parseArgs("resolve", args)
	if err != nil || strings.TrimSpace(ra.Line()) == "" {
		if err == nil {
			err = fmt.Errorf("缺少要解析的地址")
		}
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printResolveUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, ra.cliArgs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	logger := newLogger(os.Stderr, eff.LogLevel, eff.LogFormat, slog.LevelWarn)
	st, err := buildStack(ctx, eff, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer st.Close()

	res := st.pipeline.Resolve(ctx, ra.Line(), eff.Language)

	enc := json.NewEncoder(os.Stdout)
	if isTTY(os.Stdout) {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(res)

	switch res.Outcome {
	case domain.OutcomeResolved, domain.OutcomePartial:
		return 0
	default:
		return 1
	}
}

func serveCmd(ctx context.Context, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage()
			return 0
		}
	}

	ra, err := parseArgs("serve", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cli := ra.cliArgs()
	// 请求可以指定任一语言，因此两把 key 都必须就绪。
	cli.RequireAllKeys = true
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	logger := newLogger(os.Stderr, eff.LogLevel, eff.LogFormat, slog.LevelInfo)
	m := metrics.New(true)
	st, err := buildStack(ctx, eff, logger, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer st.Close()

	srv := server.New(st.pipeline, eff,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithHealth(st.health),
	)
	if err := srv.ListenAndServe(ctx, eff.ServerAddr); err != nil {
		logger.Error("http server failed", "error", err)
		return 1
	}
	return 0
}

type cliArgs struct {
	ConfigPath  string
	Language    string
	LanguageSet bool
	Addr        string
	AddrSet     bool

	Input string   // run
	Out   string   // run
	Words []string // resolve
}

func (a cliArgs) cliArgs() config.CLIArgs {
	return config.CLIArgs{
		ConfigPath:  a.ConfigPath,
		Language:    a.Language,
		LanguageSet: a.LanguageSet,
		Addr:        a.Addr,
		AddrSet:     a.AddrSet,
	}
}

// Line 把 resolve 的位置参数拼回一行（允许不加引号）。
func (a cliArgs) Line() string { return strings.Join(a.Words, " ") }

// parseArgs 支持 "--flag value" 与 "--flag=value" 两种写法；各子命令只接受自己的 flag。
func parseArgs(cmd string, args []string) (cliArgs, error) {
	allowed := map[string]bool{"--config": true, "--lang": true}
	switch cmd {
	case "run":
		allowed["--out"] = true
	case "serve":
		allowed["--addr"] = true
	}

	var ca cliArgs
	for i := 0; i < len(args); i++ {
		a := args[i]

		if a == "-" || !strings.HasPrefix(a, "-") {
			switch cmd {
			case "run":
				if ca.Input != "" {
					return cliArgs{}, fmt.Errorf("重复的输入：%q 与 %q", ca.Input, a)
				}
				ca.Input = a
			case "resolve":
				ca.Words = append(ca.Words, a)
			default:
				return cliArgs{}, fmt.Errorf("多余的参数 %q", a)
			}
			continue
		}
		if a == "--" && cmd == "resolve" {
			ca.Words = append(ca.Words, args[i+1:]...)
			break
		}

		name, val, hasVal := strings.Cut(a, "=")
		if !allowed[name] {
			return cliArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if !hasVal {
			if i+1 >= len(args) {
				return cliArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "--config":
			if strings.TrimSpace(val) == "" {
				return cliArgs{}, fmt.Errorf("--config 不能为空")
			}
			ca.ConfigPath = val
		case "--lang":
			if _, err := domain.ParseLanguage(val); err != nil || strings.TrimSpace(val) == "" {
				return cliArgs{}, fmt.Errorf("--lang 只能是 korean 或 english，实际是 %q", val)
			}
			ca.Language = val
			ca.LanguageSet = true
		case "--out":
			if strings.TrimSpace(val) == "" {
				return cliArgs{}, fmt.Errorf("--out 不能为空")
			}
			ca.Out = val
		case "--addr":
			ca.Addr = val
			ca.AddrSet = true
		}
	}
	return ca, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  jusox run [input] [--lang korean|english] [--out results.csv] [--config jusox.yaml]
  jusox resolve [--lang korean|english] [--config jusox.yaml] <address>
  jusox serve [--addr :8080] [--lang korean|english] [--config jusox.yaml]

命令：
  run      批量解析（txt/csv/html 或 stdin）
  resolve  解析单条地址，输出 JSON
  serve    启动 HTTP API

使用 "jusox <command> --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  jusox run [input] [--lang korean|english] [--out results.csv] [--config jusox.yaml]

参数：
  input       输入文件：.txt 按行，.csv 取首列，.html/.htm 取表格首列/textarea/li/pre；- 表示 stdin
  --lang      输入语言（未指定则读配置文件；最终默认 english）
  --out       写出 CSV（UTF-8 BOM，CRLF，全部字段加引号）
  --config    配置文件路径（默认 ./jusox.yaml，可选）
  -h, --help  显示帮助
`)
}

func printResolveUsage() {
	fmt.Fprint(os.Stdout, `用法：
  jusox resolve [--lang korean|english] [--config jusox.yaml] <address>

地址可以不加引号；以 -- 开头的地址请放在 -- 之后。
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  jusox serve [--addr :8080] [--lang korean|english] [--config jusox.yaml]

接口：
  GET  /v1/resolve?q=...&lang=...
  POST /v1/batch   {"lines": [...], "language": "english"}
  GET  /healthz
  GET  /metrics
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：total=%d ok=%d warn=%d err=%d\n",
		rr.Summary.Total, rr.Summary.OK, rr.Summary.Warn, rr.Summary.Err,
	)
	if isTTY(os.Stdout) {
		fmt.Fprint(os.Stdout, summary)
		for _, row := range rr.Rows {
			if row.Status != domain.StatusErr || row.ErrorCode == "" {
				continue
			}
			key := fmt.Sprintf("#%d", row.Index)
			if row.Index <= 0 {
				// 配置/输入等合成行：用输入名做定位锚点。
				key = rr.Input
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, row.ErrorCode, row.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprint(os.Stderr, summary)
}

// syntheticReport 用于批次无法开始的情况（配置/输入错误）：报告只含一条 index=0 的错误行。
func syntheticReport(inputName, lang, code, msg string) domain.RunReport {
	now := time.Now().UTC()
	l, _ := domain.ParseLanguage(lang)
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Input:      inputName,
		Language:   l,
		StartedAt:  now,
		FinishedAt: now,
		Rows: []domain.Row{{
			Index:      0,
			Status:     domain.StatusErr,
			Note:       domain.NoteError,
			ErrorCode:  code,
			ErrorMsg:   msg,
			Candidates: []domain.Candidate{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (*os.File, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
