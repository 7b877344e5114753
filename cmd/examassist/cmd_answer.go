package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"examassist/internal/browser"
	"examassist/internal/config"
	"examassist/internal/messaging"
	"examassist/internal/models"
	"examassist/internal/page"
	"examassist/internal/relay"
	"examassist/internal/report"
	"examassist/internal/scanner"
	"examassist/internal/status"
)

type answerOptions struct {
	browser  bool
	headless bool
	out      string
	report   string
	relayURL string
}

func newAnswerCommand(opts *globalOptions) *cobra.Command {
	aopts := &answerOptions{}

	cmd := &cobra.Command{
		Use:   "answer <url-or-file>",
		Short: "处理一个考试页面并输出答案",
		Long: `扫描考试页面上的选择题，查询答案并标注到页面上。

页面可以是 http(s) 地址或本地 HTML 文件。--browser 用 Chrome 打开页面，
答案直接显示在浏览器里；静态模式下可以用 --out 保存标注后的 HTML。
--relay 把查询发给正在运行的 serve 服务。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnswer(cmd, opts, aopts, args[0])
		},
	}

	cmd.Flags().BoolVar(&aopts.browser, "browser", false, "使用 Chrome 打开页面")
	cmd.Flags().BoolVar(&aopts.headless, "headless", false, "浏览器模式下不显示窗口")
	cmd.Flags().StringVarP(&aopts.out, "out", "o", "", "保存标注后的 HTML（仅静态模式）")
	cmd.Flags().StringVarP(&aopts.report, "report", "r", "", "写出 Markdown 答题卡，- 表示标准输出")
	cmd.Flags().StringVar(&aopts.relayURL, "relay", "", "serve 服务地址，例如 http://127.0.0.1:11451")

	return cmd
}

func runAnswer(cmd *cobra.Command, opts *globalOptions, aopts *answerOptions, source string) error {
	if aopts.browser && !page.IsURL(source) {
		return errors.New("浏览器模式只支持 http(s) 地址")
	}
	if aopts.browser && aopts.out != "" {
		return errors.New("--out 只支持静态页面")
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	snapshot := cfg.Snapshot()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target, closePage, err := openTarget(ctx, cfg, source, aopts)
	if err != nil {
		return err
	}
	defer closePage()

	printer := status.Func(func(e status.Event) {
		fmt.Fprintln(cmd.ErrOrStderr(), e.Message)
	})

	var transport messaging.Transport
	modelName := snapshot.Model
	if aopts.relayURL != "" {
		transport = messaging.HTTPClient{BaseURL: aopts.relayURL}
		modelName = aopts.relayURL
	} else {
		transport = messaging.Local{Handler: &messaging.Handler{
			Processor: relay.NewProcessor(models.NewClient(snapshot), printer, snapshot),
			Status:    printer,
		}}
	}

	rec := &recordingPage{Page: target}
	agent := &messaging.PageAgent{
		Page:         rec,
		Keys:         st,
		Transport:    transport,
		Status:       printer,
		BatchTimeout: time.Duration(snapshot.BatchTimeoutSec) * time.Second,
	}
	questions, err := agent.GetQuestions(ctx)
	if err != nil {
		return err
	}
	answers := rec.Answers()

	printAnswers(cmd.OutOrStdout(), questions, answers)

	if doc, ok := target.(*page.Document); ok && aopts.out != "" {
		if err := doc.WriteFile(aopts.out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "已保存标注后的页面: %s\n", aopts.out)
	}

	if aopts.report != "" {
		sheet := &report.Sheet{
			Source:    source,
			Model:     modelName,
			Questions: questions,
			Answers:   answers,
			Generated: time.Now(),
		}
		if err := writeReport(cmd.OutOrStdout(), aopts.report, sheet); err != nil {
			return err
		}
	}

	if aopts.browser {
		fmt.Fprintln(cmd.ErrOrStderr(), "答案已显示在浏览器中，按 Ctrl+C 退出")
		<-ctx.Done()
	}
	return nil
}

// openTarget 按模式打开页面，返回的关闭函数总是非空
func openTarget(ctx context.Context, cfg *config.Config, source string, aopts *answerOptions) (messaging.Page, func(), error) {
	snapshot := cfg.Snapshot()

	if aopts.browser {
		session := browser.NewSession(browser.Options{
			ChromeBinaryPath: snapshot.ChromeBinaryPath,
			Headless:         aopts.headless,
			Cookie:           snapshot.Cookie,
		})
		if err := session.Start(); err != nil {
			return nil, nil, err
		}
		if err := session.Open(ctx, source); err != nil {
			session.Stop()
			return nil, nil, err
		}
		if cookie, err := session.Cookies(ctx); err == nil && cookie != "" {
			_ = cfg.UpdateCookie(cookie)
		}
		return session, session.Stop, nil
	}

	fetcher, err := page.NewFetcher(snapshot.Cookie)
	if err != nil {
		return nil, nil, err
	}
	doc, err := page.Load(ctx, fetcher, source)
	if err != nil {
		return nil, nil, err
	}
	return doc, func() {}, nil
}

func printAnswers(w io.Writer, questions []scanner.Question, answers []string) {
	for i, q := range questions {
		answer := scanner.Unknown
		if i < len(answers) {
			answer = answers[i]
		}
		number := q.Ordinal
		if number == "" {
			number = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, "%s. %s %s\n", number, q.Type.Label(), scanner.HintFor(q, answer).Text)
	}
}

func writeReport(stdout io.Writer, path string, sheet *report.Sheet) error {
	if path == "-" {
		return report.Write(stdout, sheet)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建答题卡失败: %w", err)
	}
	if err := report.Write(f, sheet); err != nil {
		_ = f.Close()
		return fmt.Errorf("写入答题卡失败: %w", err)
	}
	return f.Close()
}

// recordingPage 记录最近一次标注的答案
type recordingPage struct {
	messaging.Page

	mu      sync.Mutex
	answers []string
}

func (p *recordingPage) Annotate(ctx context.Context, questions []scanner.Question, answers []string) (int, error) {
	p.mu.Lock()
	p.answers = append([]string(nil), answers...)
	p.mu.Unlock()
	return p.Page.Annotate(ctx, questions, answers)
}

func (p *recordingPage) Answers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answers
}
