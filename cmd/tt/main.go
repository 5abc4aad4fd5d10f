package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktrail/internal/app"
	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/lifecycle"
	"tasktrail/internal/repo"
	"tasktrail/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "Tasktrail CLI",
	Long: `Tasktrail tracks tasks with a full audit trail.
Every mutation bumps the task's version, stores a complete snapshot, and
records who did what and when. Statuses flow OPEN -> IN_PROGRESS ->
COMPLETED, with CANCELLED reachable from any non-terminal status and
reopenable back to OPEN.`,
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
	viper.SetEnvPrefix("TASKTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id, recorded in the audit trail")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userUpdateCmd())
	user.AddCommand(userDeactivateCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				u, err := l.CreateUser(ctx, name, email, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email, unique")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleDeveloper), "role (ADMIN, MANAGER, DEVELOPER)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				items, err := l.Repo.ListUsers(ctx, repo.UserFilters{
					Role:       domain.Role(role),
					ActiveOnly: activeOnly,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "EMAIL", "ROLE", "ACTIVE")
				for _, u := range items {
					t.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Active})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active users")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				u, err := l.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, role string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a user's name and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				u, err := l.Repo.UpdateUser(ctx, args[0], name, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (ADMIN, MANAGER, DEVELOPER)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a user (refused while tasks are assigned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				if err := l.Repo.DeactivateUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("User %s deactivated\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks carry a monotonically increasing version. Every change records a snapshot (tt task history) and an audit event (tt task activity).",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskPriorityCmd())
	task.AddCommand(taskDueCmd())
	task.AddCommand(taskCommentCmd())
	task.AddCommand(taskHistoryCmd())
	task.AddCommand(taskActivityCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts lifecycle.TaskCreateOptions
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CreatorID = actorID()
			opts.Priority = domain.Priority(priority)
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.Create(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (LOW, MEDIUM, HIGH, CRITICAL)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag, repeatable")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, priority, assignee, creator, tag, sort string
	var unassigned, overdue bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				items, err := l.Repo.ListTasks(ctx, repo.TaskFilters{
					Status:     domain.Status(status),
					Priority:   domain.Priority(priority),
					AssigneeID: assignee,
					CreatorID:  creator,
					Unassigned: unassigned,
					Overdue:    overdue,
					Tag:        tag,
					Sort:       sort,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "DUE", "V")
				for _, it := range items {
					t.AppendRow(table.Row{it.ID, it.Title, it.Status, it.Priority, deref(it.AssignedTo), deref(it.DueDate), it.Version})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee user id")
	cmd.Flags().StringVar(&creator, "creator", "", "filter by creator user id")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only unassigned tasks")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only overdue, non-terminal tasks")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().StringVar(&sort, "sort", "", "sort (created_at, priority, due_date)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.ChangeStatus(ctx, args[0], status, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "assign <task-id> [user-id]",
		Short: "Assign a task, or clear the assignee with --clear",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var assignee *string
			if !clear {
				if len(args) < 2 {
					return fmt.Errorf("user-id required unless --clear")
				}
				assignee = &args[1]
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.Reassign(ctx, args[0], assignee, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "unassign the task")
	return cmd
}

func taskPriorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority <id> <priority>",
		Short: "Change a task's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePriority(args[1])
			if err != nil {
				return err
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.ChangePriority(ctx, args[0], p, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDueCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "due <task-id> [date]",
		Short: "Change a task's due date (YYYY-MM-DD), or clear it with --clear",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var due *string
			if !clear {
				if len(args) < 2 {
					return fmt.Errorf("date required unless --clear")
				}
				due = &args[1]
			}
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				t, err := l.ChangeDueDate(ctx, args[0], due, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the due date")
	return cmd
}

func taskCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Add a comment to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				c, err := l.AddComment(ctx, args[0], actorID(), args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func taskHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a task's version history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				items, err := l.GetHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("V", "STATUS", "PRIORITY", "ASSIGNEE", "CHANGE", "AT")
				for _, v := range items {
					t.AppendRow(table.Row{v.Version, v.Status, v.Priority, deref(v.AssignedTo), v.ChangeSummary, v.VersionedAt})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	return cmd
}

func taskActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity <id>",
		Short: "Show a task's audit trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				items, err := l.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("TYPE", "BY", "AT", "DETAILS")
				for _, e := range items {
					t.AppendRow(table.Row{e.Type, e.PerformedBy, e.TS, e.Details})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), func(ctx context.Context, l lifecycle.Lifecycle) error {
				counts, err := l.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				fmt.Println("Tasks:")
				for _, s := range []domain.Status{domain.StatusOpen, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled} {
					fmt.Printf("  %s: %d\n", s, counts[s])
				}
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			if !cmd.Flags().Changed("addr") && appCtx.Config.Server.Addr != "" {
				addr = appCtx.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && appCtx.Config.Server.BasePath != "" {
				basePath = appCtx.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("TASKTRAIL_JWT_SECRET"),
				AllowActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("TASKTRAIL_JWT_SECRET is required for bearer auth (or pass --allow-actor-header for development)")
			}
			handler, err := server.New(server.Config{
				Lifecycle: appCtx.Lifecycle,
				BasePath:  basePath,
				Auth:      authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Workspace database: %s\n", db.Path(workspace))
			fmt.Printf("Serving Tasktrail API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (development only)")
	return cmd
}

// --- helpers ---

func withLifecycle(ctx context.Context, fn func(context.Context, lifecycle.Lifecycle) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Lifecycle)
}

func actorID() string {
	actor := viper.GetString("actor-id")
	if actor == "" {
		actor = os.Getenv("TASKTRAIL_ACTOR_ID")
	}
	return actor
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(headers))
	return t
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
