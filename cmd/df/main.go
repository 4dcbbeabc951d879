package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dealflow/internal/app"
	"dealflow/internal/bridge"
	appconfig "dealflow/internal/config"
	"dealflow/internal/db"
	"dealflow/internal/domain"
	"dealflow/internal/engine"
	"dealflow/internal/logging"
	"dealflow/internal/repo"
	"dealflow/internal/risk"
	"dealflow/internal/server"
	"dealflow/internal/stats"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "df",
	Short: "Dealflow CLI",
	Long: `Dealflow tracks sales deals moving through pipeline stages.
- Workspace: the .dealflow directory holding the database; dealflow.yml holds stages, risk thresholds and close reasons.
- Pipeline: an ordered set of stages; proposal, win and loss stages carry roles so rules survive renames.
- Deals: move between stages through the transition engine; every move is recorded in an append-only history.
- Gate rules: a deal needs a value before entering proposal or win stages; closing needs a reason from the catalog.
- Agent bridge: 'df mcp' exposes the pipeline to conversational agents over MCP.
- Event log: diary of changes, view with 'df log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEALFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-name", "", "actor display name")
	rootCmd.PersistentFlags().String("pipeline", "", "pipeline id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-name", rootCmd.PersistentFlags().Lookup("actor-name"))
	_ = viper.BindPFlag("pipeline", rootCmd.PersistentFlags().Lookup("pipeline"))
}

func registerCommands() {
	rootCmd.AddCommand(pipelineCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(dealCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
}

func actorFromFlags() domain.Actor {
	return domain.Actor{
		Kind:        domain.ActorHuman,
		ID:          viper.GetString("actor-id"),
		DisplayName: viper.GetString("actor-name"),
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"), logging.New(slog.LevelInfo))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pipeline", Short: "Manage pipelines"}
	cmd.AddCommand(pipelineInitCmd())
	cmd.AddCommand(pipelineListCmd())
	cmd.AddCommand(pipelineShowCmd())
	cmd.AddCommand(pipelineConfigCmd())
	return cmd
}

func pipelineInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [id]",
		Short: "Create a pipeline from dealflow.yml, writing a default config first if missing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			id := "default"
			if len(args) > 0 {
				id = args[0]
			}
			cfgPath := appconfig.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(appconfig.GenerateDefault(id)), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cfg := a.Config
				if cfg == nil {
					var err error
					cfg, err = appconfig.Load(workspace)
					if err != nil {
						return err
					}
				}
				p, stages, err := a.Engine.CreatePipeline(ctx, cfg, actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"pipeline": p, "stages": stages})
			})
		},
	}
	return cmd
}

func pipelineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Store.ListPipelines(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func pipelineShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active pipeline and its stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				stages, err := a.Store.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"pipeline": p, "stages": stages})
			})
		},
	}
}

func pipelineConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [id]",
		Short: "Write a default dealflow.yml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := "default"
			if len(args) > 0 {
				id = args[0]
			}
			path := appconfig.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(appconfig.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the parsed workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	return cmd
}

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stage", Short: "Manage pipeline stages"}
	cmd.AddCommand(stageListCmd())
	cmd.AddCommand(stageAddCmd())
	cmd.AddCommand(stageRmCmd())
	cmd.AddCommand(stageOrderCmd())
	return cmd
}

func stageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stages in pipeline order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				stages, err := a.Store.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(stages)
			})
		},
	}
}

func stageAddCmd() *cobra.Command {
	var color, role string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Append a stage to the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				s, err := a.Engine.CreateStage(ctx, p.ID, args[0], color, domain.StageRole(role), actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "stage color")
	cmd.Flags().StringVar(&role, "role", "normal", "stage role: normal, proposal, win, loss")
	return cmd
}

func stageRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <stage-id>",
		Short: "Delete a stage with no deals in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.DeleteStage(ctx, args[0], actorFromFlags()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func stageOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <stage-id>...",
		Short: "Reorder stages; list every stage id exactly once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				stages, err := a.Engine.ReorderStages(ctx, p.ID, args, actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(stages)
			})
		},
	}
}

func dealCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deal", Short: "Manage deals"}
	cmd.AddCommand(dealCreateCmd())
	cmd.AddCommand(dealListCmd())
	cmd.AddCommand(dealShowCmd())
	cmd.AddCommand(dealMoveCmd())
	cmd.AddCommand(dealValueCmd())
	cmd.AddCommand(dealNoteCmd())
	cmd.AddCommand(dealAssignCmd())
	cmd.AddCommand(dealTaskCmd())
	cmd.AddCommand(dealHistoryCmd())
	return cmd
}

func dealCreateCmd() *cobra.Command {
	var stageID, notes, assignedTo, leadID string
	var value float64
	cmd := &cobra.Command{
		Use:   "create <lead-name>",
		Short: "Create a deal in the pipeline's first stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				opts := dealCreateOptions(p.ID, args[0], stageID, notes, assignedTo, leadID, value)
				d, err := a.Engine.CreateDeal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "initial stage id")
	cmd.Flags().Float64Var(&value, "value", 0, "deal value")
	cmd.Flags().StringVar(&notes, "notes", "", "initial notes")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "assignee")
	cmd.Flags().StringVar(&leadID, "lead-id", "", "external lead id")
	return cmd
}

func dealListCmd() *cobra.Command {
	var stageID, assignedTo string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				deals, err := a.Store.ListDeals(ctx, repo.DealFilters{
					PipelineID: p.ID,
					StageID:    stageID,
					AssignedTo: assignedTo,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(deals)
				}
				stages, err := a.Store.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				stageNames := make(map[string]string, len(stages))
				for _, s := range stages {
					stageNames[s.ID] = s.Name
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Lead", "Stage", "Value", "Since"})
				for _, d := range deals {
					tw.AppendRow(table.Row{d.ID, d.LeadName, stageNames[d.StageID], d.Value, d.StageUpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "filter by stage id")
	cmd.Flags().StringVar(&assignedTo, "assignee", "", "filter by assignee")
	cmd.Flags().IntVar(&limit, "limit", 0, "max deals")
	return cmd
}

func dealShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Show a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Store.GetDeal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func dealMoveCmd() *cobra.Command {
	var reason, comments string
	cmd := &cobra.Command{
		Use:   "move <deal-id> <stage-id>",
		Short: "Move a deal to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.Transition(ctx, dealMoveOptions(args[0], args[1], reason, comments))
				if err != nil {
					return err
				}
				if res.NoOp {
					fmt.Println("deal already in target stage, nothing to do")
					return nil
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "close reason, required for win/loss stages")
	cmd.Flags().StringVar(&comments, "comments", "", "free-form comment stored in the history")
	return cmd
}

func dealValueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "value <deal-id> <value>",
		Short: "Set a deal's value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value float64
			if _, err := fmt.Sscanf(args[1], "%f", &value); err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.UpdateDealValue(ctx, args[0], value, actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func dealNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note <deal-id> <text>",
		Short: "Append a note to a deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.AddDealNote(ctx, args[0], args[1], actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func dealAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <deal-id> [assignee]",
		Short: "Assign a deal; omit the assignee to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee := ""
			if len(args) == 2 {
				assignee = args[1]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.AssignDeal(ctx, args[0], assignee, actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func dealTaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage follow-up tasks"}
	var dueAt string
	add := &cobra.Command{
		Use:   "add <deal-id> <title>",
		Short: "Schedule a follow-up task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Engine.ScheduleTask(ctx, args[0], args[1], dueAt, actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().StringVar(&dueAt, "due", time.Now().UTC().Add(24*time.Hour).Format(time.RFC3339), "due timestamp, RFC3339")
	cmd.AddCommand(add)
	cmd.AddCommand(&cobra.Command{
		Use:   "list <deal-id>",
		Short: "List a deal's follow-up tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				tasks, err := a.Store.ListFollowUpTasks(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	})
	return cmd
}

func dealHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <deal-id>",
		Short: "Show a deal's transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				recs, err := a.Engine.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Pipeline totals by stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				stages, err := a.Store.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				deals, err := a.Store.ListDeals(ctx, repo.DealFilters{PipelineID: p.ID})
				if err != nil {
					return err
				}
				agg := stats.Aggregate(p.ID, stages, deals, time.Now().UTC(), riskThresholds(a.Config))
				if viper.GetBool("json") {
					return printJSON(agg)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Role", "Deals", "Value"})
				for _, s := range agg.Stages {
					tw.AppendRow(table.Row{s.StageName, s.Role, s.Count, s.TotalValue})
				}
				tw.AppendFooter(table.Row{"open", "", agg.OpenCount, agg.OpenValue})
				tw.Render()
				fmt.Printf("won: %d (%.2f)  lost: %d (%.2f)  at risk: %d\n",
					agg.WonCount, agg.WonValue, agg.LostCount, agg.LostValue, agg.AtRisk)
				return nil
			})
		},
	}
}

func riskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Risk flags for every open deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.ResolvePipeline(ctx, viper.GetString("pipeline"))
				if err != nil {
					return err
				}
				stages, err := a.Store.ListStages(ctx, p.ID)
				if err != nil {
					return err
				}
				deals, err := a.Store.ListDeals(ctx, repo.DealFilters{PipelineID: p.ID})
				if err != nil {
					return err
				}
				byID := make(map[string]domain.Stage, len(stages))
				for _, s := range stages {
					byID[s.ID] = s
				}
				flags := risk.EvaluateAll(deals, byID, time.Now().UTC(), riskThresholds(a.Config))
				return printJSONOrTable(flags)
			})
		},
	}
}

func riskThresholds(cfg *appconfig.Config) risk.Thresholds {
	if cfg == nil {
		return risk.DefaultThresholds()
	}
	days, floor := cfg.RiskThresholds()
	return risk.Thresholds{StagnationDays: days, HighValueFloor: floor}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var limit int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				pipelineID := viper.GetString("pipeline")
				if pipelineID == "" {
					if p, err := a.ResolvePipeline(ctx, ""); err == nil {
						pipelineID = p.ID
					}
				}
				events, err := a.Store.LatestEvents(ctx, limit, pipelineID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "max events")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	cmd.AddCommand(tail)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Create an API key; the raw key is printed once and never stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				raw := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   args[0],
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Store.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	cmd.AddCommand(create)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, jwtSecret string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Bridge:   bridge.Bridge{Engine: a.Engine, Store: a.Store, Log: a.Log},
					AppCfg:   a.Config,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:              jwtSecret,
						AllowLegacyActorHeader: allowLegacy,
						Logger:                 a.Log,
					},
					Version: version,
				})
				if err != nil {
					return err
				}
				a.Log.Info("serving HTTP API", "addr", addr, "base_path", basePath)
				return http.ListenAndServe(addr, handler)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", os.Getenv("DEALFLOW_JWT_SECRET"), "HS256 secret for bearer tokens")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor", false, "accept the X-Actor-Id header without auth")
	return cmd
}

func mcpCmd() *cobra.Command {
	var ssePort int
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent bridge over MCP (stdio by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				b := bridge.Bridge{Engine: a.Engine, Store: a.Store, Log: a.Log}
				srv := bridge.NewMCPServer(b, version)
				if ssePort > 0 {
					a.Log.Info("serving MCP over SSE", "port", ssePort)
					return srv.ServeSSE(ctx, ssePort)
				}
				return srv.ServeStdio()
			})
		},
	}
	cmd.Flags().IntVar(&ssePort, "sse-port", 0, "serve over SSE on this port instead of stdio")
	return cmd
}

func dealCreateOptions(pipelineID, leadName, stageID, notes, assignedTo, leadID string, value float64) (opts engine.CreateDealOptions) {
	opts.PipelineID = pipelineID
	opts.StageID = stageID
	opts.LeadName = leadName
	opts.Value = value
	opts.Notes = notes
	if assignedTo != "" {
		opts.AssignedTo = &assignedTo
	}
	if leadID != "" {
		opts.LeadID = &leadID
	}
	opts.Actor = actorFromFlags()
	return opts
}

func dealMoveOptions(dealID, stageID, reason, comments string) engine.TransitionOptions {
	return engine.TransitionOptions{
		DealID:    dealID,
		ToStageID: stageID,
		Actor:     actorFromFlags(),
		Reason:    reason,
		Comments:  comments,
	}
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
