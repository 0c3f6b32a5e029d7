package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are planned work split into ordered phases. Creating one notifies the brigades.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskProgressCmd())
	return task
}

// parsePhase reads "name[:days]".
func parsePhase(s string) (engine.PhaseSpec, error) {
	name, days, found := strings.Cut(s, ":")
	spec := engine.PhaseSpec{Name: strings.TrimSpace(name)}
	if found {
		n, err := strconv.Atoi(strings.TrimSpace(days))
		if err != nil {
			return spec, fmt.Errorf("phase %q: duration must be a number of days", s)
		}
		spec.DurationDays = n
	}
	return spec, nil
}

// parseMaterial reads "material_id=quantity".
func parseMaterial(s string) (domain.TaskMaterial, error) {
	id, qty, found := strings.Cut(s, "=")
	if !found {
		return domain.TaskMaterial{}, fmt.Errorf("material %q: expected id=quantity", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(qty))
	if err != nil {
		return domain.TaskMaterial{}, fmt.Errorf("material %q: quantity must be a number", s)
	}
	return domain.TaskMaterial{MaterialID: strings.TrimSpace(id), Quantity: n}, nil
}

func parseMaterials(in []string) ([]domain.TaskMaterial, error) {
	var out []domain.TaskMaterial
	for _, s := range in {
		m, err := parseMaterial(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var phases, materials []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleSection)
			if err != nil {
				return err
			}
			opts.ActorID = p.ActorID
			for _, s := range phases {
				spec, err := parsePhase(s)
				if err != nil {
					return err
				}
				opts.Phases = append(opts.Phases, spec)
			}
			if opts.Materials, err = parseMaterials(materials); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				out, err := ws.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				printWarnings(out.WarningMessages())
				return printTask(out.Value)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.PlannedStart, "start", "", "planned start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PlannedEnd, "end", "", "planned end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status code or French label")
	cmd.Flags().StringVar(&opts.BrigadeID, "brigade", "", "brigade id")
	cmd.Flags().StringSliceVar(&opts.Employees, "employee", nil, "assigned employee (repeatable)")
	cmd.Flags().StringArrayVar(&phases, "phase", nil, "phase as name[:days] (repeatable, in order)")
	cmd.Flags().StringArrayVar(&materials, "material", nil, "planned material as id=quantity (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, brigade string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.TaskFilters{BrigadeID: brigade, Limit: limit}
			if status != "" {
				s, err := domain.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				tasks, err := ws.Engine.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Brigade", "Start", "End"})
				for _, t := range tasks {
					label, _ := t.Status.Label()
					tw.AppendRow(table.Row{t.ID, t.Title, label, stringOrEmpty(t.BrigadeID), t.PlannedStart, t.PlannedEnd})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (code or label)")
	cmd.Flags().StringVar(&brigade, "brigade", "", "brigade filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task with its phases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	label, _ := t.Status.Label()
	prog := domain.Progress(t.ID, t.Phases)
	fmt.Printf("%s  %s  [%s]  %d/%d phases\n", t.ID, t.Title, label, prog.Done, prog.Total)
	if t.PlannedStart != "" || t.PlannedEnd != "" {
		fmt.Printf("planned %s → %s", t.PlannedStart, t.PlannedEnd)
		if t.ActualEnd != nil {
			fmt.Printf("  (ended %s)", *t.ActualEnd)
		}
		fmt.Println()
	}
	if len(t.Phases) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Phase", "Name", "Status", "Planned", "Actual"})
	for _, ph := range t.Phases {
		label, _ := ph.Status.Label()
		planned := stringOrEmpty(ph.PlannedStart) + " → " + stringOrEmpty(ph.PlannedEnd)
		actual := stringOrEmpty(ph.ActualStart)
		if ph.ActualEnd != nil {
			actual += " → " + *ph.ActualEnd
		}
		tw.AppendRow(table.Row{ph.Order, ph.ID, ph.Name, label, planned, actual})
	}
	tw.Render()
	return nil
}

func taskUpdateCmd() *cobra.Command {
	var title, description, start, end, status, brigade string
	var employees, materials []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long:  "Only the given flags change. Any status may follow any other.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleSection)
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{ID: args[0], ActorID: p.ActorID}
			flags := cmd.Flags()
			set := func(name string, v *string) *string {
				if flags.Changed(name) {
					return v
				}
				return nil
			}
			opts.Title = set("title", &title)
			opts.Description = set("description", &description)
			opts.PlannedStart = set("start", &start)
			opts.PlannedEnd = set("end", &end)
			opts.Status = set("status", &status)
			opts.BrigadeID = set("brigade", &brigade)
			if flags.Changed("employee") {
				opts.Employees = append([]string{}, employees...)
			}
			if flags.Changed("material") {
				ms, err := parseMaterials(materials)
				if err != nil {
					return err
				}
				opts.Materials = append([]domain.TaskMaterial{}, ms...)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				found, err := ws.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("task %s: %w", args[0], repo.ErrNotFound)
				}
				t, err := ws.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "planned start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "planned end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "status code or French label")
	cmd.Flags().StringVar(&brigade, "brigade", "", "brigade id")
	cmd.Flags().StringSliceVar(&employees, "employee", nil, "replace assigned employees")
	cmd.Flags().StringArrayVar(&materials, "material", nil, "replace planned materials (id=quantity)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task with its phases, reports and photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleSection)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				found, err := ws.Engine.DeleteTask(ctx, args[0], p.ActorID)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("task %s: %w", args[0], repo.ErrNotFound)
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Show phase-derived progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				prog, err := ws.Engine.Progress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(prog)
				}
				fmt.Printf("%s: %d/%d phases done (%.0f%%)\n", prog.TaskID, prog.Done, prog.Total, prog.Fraction*100)
				return nil
			})
		},
	}
}

func phaseCmd() *cobra.Command {
	phase := &cobra.Command{
		Use:   "phase",
		Short: "Move phases forward",
		Long:  "Phases go waiting -> in_progress -> done and never back.",
	}
	advance := func(use, short string, fn func(engine.Engine) func(context.Context, string, string) (bool, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <phase-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := requireRole()
				if err != nil {
					return err
				}
				return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
					found, err := fn(ws.Engine)(ctx, args[0], p.ActorID)
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("phase %s: %w", args[0], repo.ErrNotFound)
					}
					ph, err := ws.Engine.GetPhase(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(ph)
				})
			},
		}
	}
	phase.AddCommand(advance("start", "Start a phase", func(e engine.Engine) func(context.Context, string, string) (bool, error) {
		return e.StartPhase
	}))
	phase.AddCommand(advance("complete", "Complete a phase", func(e engine.Engine) func(context.Context, string, string) (bool, error) {
		return e.CompletePhase
	}))
	return phase
}
