package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"goalpace/internal/app"
	"goalpace/internal/config"
	"goalpace/internal/domain"
	"goalpace/internal/engine"
	"goalpace/internal/events"
	"goalpace/internal/notify"
	"goalpace/internal/progress"
	"goalpace/internal/report"
	"goalpace/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gp",
	Short: "Goalpace CLI",
	Long: `Goalpace tracks weekly goals against a calendar week and awards achievements.
- Week: Monday to Sunday in the configured timezone; "remaining days" includes today.
- Goals: a weekly target per category; composite goals count their member categories.
- Pace: a goal is on pace while the remaining days can still reach the target.
- Passes: a skipped day that keeps a streak alive, offered only when there is slack.
- Bests: a value strictly better than every earlier one for that metric.
- Ledger: each pool achievement is claimed at most once per ISO week and levels up the pool.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GOALPACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/goalpace.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("at", "", "evaluate at this instant (RFC3339 or YYYY-MM-DD) instead of now")
	for _, name := range []string{"workspace", "config", "json", "log-level", "at"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(goalsCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(passCmd())
	rootCmd.AddCommand(bestCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(claimsCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "gp"})
	if lvl, err := log.ParseLevel(viper.GetString("log-level")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", viper.GetString("log-level"))
	}
	return logger
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage goalpace.yml"}
	var timezone string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default goalpace.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			body := config.GenerateDefault(timezone)
			if _, err := config.FromYAML([]byte(body)); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone of the tracking week")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Validate and print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func weekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week",
		Short: "Show the current tracking week",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				w := rt.Engine.Week()
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("Week %s: %s .. %s (today %s)\n", w.PeriodKey(), w.Start, w.End, w.Today)
				fmt.Printf("Remaining days: %d (pacing: %d)\n", w.RemainingDays, w.PaceDays)
				return nil
			})
		},
	}
}

func goalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goals",
		Short: "List configured goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				goals := rt.Engine.Registry.All()
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Weekly target", "Passable", "Members"})
				for _, g := range goals {
					tw.AppendRow(table.Row{g.Category, g.WeeklyTarget, g.Passable, strings.Join(g.Members, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func progressCmd() *cobra.Command {
	var recordsPath string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Evaluate goal progress for the current week",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := loadRecords(recordsPath)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				records, diags := progress.Parse(raw)
				warnDiagnostics(diags)
				sum := rt.Engine.Progress(records)
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				renderSummary(sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "activity records file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

func reportCmd() *cobra.Command {
	var recordsPath string
	var milestones []string
	var send bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compose the weekly text report",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := loadRecords(recordsPath)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				var extras []report.Extra
				if len(milestones) > 0 {
					extras = append(extras, report.Milestones("Milestones", milestones))
				}
				rep := rt.Engine.Report(raw, extras...)
				warnDiagnostics(rep.Diagnostics)
				if rt.Repo != nil {
					if err := rt.Repo.RecordEvent(ctx, events.TypeReportComposed, "report", rep.ID, events.Payload{
						"period_key": rep.Window.PeriodKey(),
						"severity":   string(rep.Summary.Severity),
						"text":       rep.Text,
					}); err != nil {
						return err
					}
				}
				if send {
					if err := sendAll(ctx, rt, notify.Message{Kind: events.TypeReportComposed, Text: rep.Text, PeriodKey: rep.Window.PeriodKey()}); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Println(rep.Text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "activity records file (YAML or JSON)")
	cmd.Flags().StringSliceVar(&milestones, "milestone", nil, "milestone line to append (repeatable)")
	cmd.Flags().BoolVar(&send, "notify", false, "deliver the report to configured webhooks")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

func passCmd() *cobra.Command {
	var recordsPath, category string
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Check whether a pass may be offered today",
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []domain.RawRecord
			if recordsPath != "" {
				var err error
				if raw, err = loadRecords(recordsPath); err != nil {
					return err
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				records, diags := progress.Parse(raw)
				warnDiagnostics(diags)
				ok, err := rt.Engine.CanPass(category, records)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"category": category, "can_pass": ok})
				}
				if ok {
					fmt.Printf("A pass may be used for %s today.\n", category)
				} else {
					fmt.Printf("No pass available for %s today.\n", category)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordsPath, "records", "", "activity records file (YAML or JSON)")
	cmd.Flags().StringVar(&category, "category", "", "goal category")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func bestCmd() *cobra.Command {
	var metric, history string
	var candidate float64
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Check whether a value is a new personal best",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseFloats(history)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.CheckBest(metric, values, candidate)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.IsNewBest {
					fmt.Printf("New best for %s: %s\n", metric, strconv.FormatFloat(candidate, 'f', 1, 64))
				} else {
					fmt.Printf("Not a new best for %s (best %s)\n", metric, strconv.FormatFloat(res.Previous.BestValue, 'f', 1, 64))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "metric key")
	cmd.Flags().StringVar(&history, "history", "", "comma-separated earlier values")
	cmd.Flags().Float64Var(&candidate, "candidate", 0, "candidate value")
	_ = cmd.MarkFlagRequired("metric")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func claimCmd() *cobra.Command {
	var pool, period string
	var send bool
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a pool achievement (defaults to the current ISO week)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				var res domain.ClaimResult
				var err error
				if period == "" {
					res, period, err = rt.Engine.ClaimWeek(ctx, pool)
				} else {
					res, err = rt.Engine.Claim(ctx, pool, period)
				}
				if err != nil {
					return err
				}
				return announce(ctx, rt, pool, period, res, send)
			})
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "achievement pool")
	cmd.Flags().StringVar(&period, "period", "", "period key, e.g. 2024-W05")
	cmd.Flags().BoolVar(&send, "notify", false, "deliver the announcement to configured webhooks")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func completeCmd() *cobra.Command {
	var pool, recordsPath string
	var send bool
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Claim a pool once every goal of the week is complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := loadRecords(recordsPath)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				records, diags := progress.Parse(raw)
				warnDiagnostics(diags)
				c, err := rt.Engine.CompleteWeek(ctx, pool, records)
				if err != nil {
					return err
				}
				if !c.Attempted {
					if viper.GetBool("json") {
						return printJSON(c)
					}
					renderSummary(c.Summary)
					fmt.Println("Not every goal is complete yet; nothing claimed.")
					return nil
				}
				return announce(ctx, rt, pool, c.PeriodKey, c.Claim, send)
			})
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "achievement pool")
	cmd.Flags().StringVar(&recordsPath, "records", "", "activity records file (YAML or JSON)")
	cmd.Flags().BoolVar(&send, "notify", false, "deliver the announcement to configured webhooks")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("records")
	return cmd
}

func claimsCmd() *cobra.Command {
	claims := &cobra.Command{Use: "claims", Short: "Inspect the achievement ledger"}
	var pool, period string
	var limit int
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the ledger entry of a pool for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key := period
				if key == "" {
					key = rt.Engine.Week().PeriodKey()
				}
				entry, err := rt.Engine.Entry(ctx, pool, key)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	showCmd.Flags().StringVar(&pool, "pool", "", "achievement pool")
	showCmd.Flags().StringVar(&period, "period", "", "period key (default current week)")
	_ = showCmd.MarkFlagRequired("pool")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List claimed periods of a pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if rt.Repo == nil {
					return errors.New("claim history requires the sqlite ledger")
				}
				items, err := rt.Repo.ListClaims(ctx, pool, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Period", "Level", "Claimed at"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.PeriodKey, e.Level, e.ClaimedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&pool, "pool", "", "achievement pool")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	_ = listCmd.MarkFlagRequired("pool")
	claims.AddCommand(showCmd, listCmd)
	return claims
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				logger := rt.Engine.Log
				if addr == "" {
					addr = rt.Config.Server.Addr
				}
				if basePath == "" {
					basePath = rt.Config.Server.BasePath
				}
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					secret = rt.Config.Server.JWTSecret
				}
				srvCfg := server.Config{Engine: rt.Engine, BasePath: basePath, Auth: server.AuthConfig{JWTSecret: secret, Logger: logger}}
				if rt.Repo != nil {
					srvCfg.History = rt.Repo
					d := notify.NewDispatcher(rt.Repo, rt.Config.Notify.Webhooks, logger)
					if d.Len() > 0 {
						go d.Run(ctx)
						logger.Info("webhook dispatcher started", "targets", d.Len())
					}
				} else if len(rt.Config.Notify.Webhooks) > 0 {
					logger.Warn("webhook dispatch needs the sqlite event log; use --notify on claim instead")
				}
				handler, err := server.New(srvCfg)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving goalpace API", "url", "http://"+addr+basePath, "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer auth (env GOALPACE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	logger := newLogger()
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, viper.GetString("config"))
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, workspace, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	if at := viper.GetString("at"); at != "" {
		instant, err := parseInstant(at, rt.Engine.Resolver.Zone)
		if err != nil {
			return err
		}
		rt.Engine.Now = func() time.Time { return instant }
	}
	return fn(ctx, rt)
}

func announce(ctx context.Context, rt *app.Runtime, pool, period string, res domain.ClaimResult, send bool) error {
	out := map[string]any{"pool": pool, "period_key": period, "claimed": res.Claimed, "level": res.Level}
	var text string
	if res.Claimed {
		text = report.Announcement(pool, res.Level)
		out["announcement"] = text
		if send {
			if err := sendAll(ctx, rt, notify.Message{Kind: events.TypeAchievementClaimed, Text: text, Pool: pool, PeriodKey: period, Level: res.Level}); err != nil {
				return err
			}
		}
	}
	if viper.GetBool("json") {
		return printJSON(out)
	}
	if res.Claimed {
		fmt.Println(text)
	} else {
		fmt.Printf("%s already claimed for %s (level %d)\n", pool, period, res.Level)
	}
	return nil
}

func sendAll(ctx context.Context, rt *app.Runtime, msg notify.Message) error {
	var errs []error
	for _, hook := range rt.Config.Notify.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if err := notify.NewWebhook(hook).Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.URL, err))
		}
	}
	return errors.Join(errs...)
}

func renderSummary(sum engine.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s (%s .. %s) severity: %s", sum.Window.PeriodKey(), sum.Window.Start, sum.Window.End, sum.Severity))
	tw.AppendHeader(table.Row{"Goal", "Current", "Target", "Days left", "Status", "Pass"})
	for _, s := range sum.Snapshots {
		tw.AppendRow(table.Row{s.Category, s.Current, s.Target, s.RemainingDays, s.Status, s.CanPass})
	}
	tw.Render()
}

func warnDiagnostics(diags []domain.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "skipped record %d: %s\n", d.Index, d.Reason)
	}
}

// loadRecords reads a YAML or JSON file holding either a list of records or
// an object with a records key.
func loadRecords(path string) ([]domain.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}
	var list []domain.RawRecord
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Records []domain.RawRecord `json:"records" yaml:"records"`
	}
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse records %s: %w", path, err)
	}
	return wrapped.Records, nil
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: expected RFC3339 or YYYY-MM-DD: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, loc), nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("--history: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
