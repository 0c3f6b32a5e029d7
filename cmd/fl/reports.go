package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Field reports",
		Long:  "A brigade files reports on a phase with photos; the section approves them or sends them back for revision.",
	}
	rep.AddCommand(reportSubmitCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportGetCmd())
	rep.AddCommand(reportUpdateCmd())
	rep.AddCommand(reportJudgeCmd())
	rep.AddCommand(reportDeleteCmd())
	rep.AddCommand(reportPhotoCmd())
	return rep
}

func readPhotos(paths []string) ([]domain.PhotoUpload, error) {
	var out []domain.PhotoUpload
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("photo %s: %w", p, err)
		}
		out = append(out, domain.PhotoUpload{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}

func reportSubmitCmd() *cobra.Command {
	var opts engine.ReportSubmitOptions
	var photos []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a report on a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleBrigade)
			if err != nil {
				return err
			}
			opts.ActorID = p.ActorID
			if opts.Photos, err = readPhotos(photos); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, err := ws.Engine.SubmitReport(ctx, opts)
				if err != nil {
					return err
				}
				return printReport(rep)
			})
		},
	}
	cmd.Flags().StringVar(&opts.PhaseID, "phase", "", "phase id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what was done")
	cmd.Flags().StringVar(&opts.ReportDate, "date", "", "report date (default today)")
	cmd.Flags().IntVar(&opts.Advancement, "advancement", 0, "advancement percentage (0-100)")
	cmd.Flags().StringArrayVar(&photos, "photo", nil, "photo file (repeatable)")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func reportListCmd() *cobra.Command {
	var f repo.ReportFilters
	var validation string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if validation != "" {
				v, err := domain.ParseValidation(validation)
				if err != nil {
					return err
				}
				f.Validation = v
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				reports, err := ws.Engine.ListReports(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Phase", "Date", "Advancement", "Validation", "Photos"})
				for _, r := range reports {
					label, _ := r.Validation.Label()
					tw.AppendRow(table.Row{r.ID, r.PhaseID, r.ReportDate, fmt.Sprintf("%d%%", r.Advancement), label, len(r.Photos)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	cmd.Flags().StringVar(&f.PhaseID, "phase", "", "phase filter")
	cmd.Flags().StringVar(&validation, "validation", "", "validation filter (code or label)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func printReport(r domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	label, _ := r.Validation.Label()
	fmt.Printf("%s  phase %s  %s  %d%%  [%s]\n", r.ID, r.PhaseID, r.ReportDate, r.Advancement, label)
	fmt.Println(r.Description)
	if r.Comment != nil {
		fmt.Println("comment:", *r.Comment)
	}
	for _, ph := range r.Photos {
		fmt.Printf("  photo %d: %s\n", ph.Order, ph.Filename)
	}
	return nil
}

func reportGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, err := ws.Engine.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(rep)
			})
		},
	}
}

func reportUpdateCmd() *cobra.Command {
	var description string
	var advancement int
	var photos []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a report",
		Long:  "Only the given flags change. Passing --photo replaces the whole photo set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleBrigade)
			if err != nil {
				return err
			}
			opts := engine.ReportUpdateOptions{ID: args[0], ActorID: p.ActorID}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("advancement") {
				opts.Advancement = &advancement
			}
			if cmd.Flags().Changed("photo") {
				uploads, err := readPhotos(photos)
				if err != nil {
					return err
				}
				opts.Photos = append([]domain.PhotoUpload{}, uploads...)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				found, err := ws.Engine.UpdateReport(ctx, opts)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("report %s: %w", args[0], repo.ErrNotFound)
				}
				rep, err := ws.Engine.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(rep)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what was done")
	cmd.Flags().IntVar(&advancement, "advancement", 0, "advancement percentage (0-100)")
	cmd.Flags().StringArrayVar(&photos, "photo", nil, "replacement photo file (repeatable)")
	return cmd
}

func reportJudgeCmd() *cobra.Command {
	var validation, comment string
	cmd := &cobra.Command{
		Use:   "judge <id>",
		Short: "Approve a report or send it back",
		Long:  `--validation takes a code (approved, needs_revision, pending) or its label
("Approuvé", "À réviser", "En attente"). Without it, or with pending, only the
comment is stored and the report stays pending.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleSection)
			if err != nil {
				return err
			}
			opts := engine.JudgeOptions{ID: args[0], Validation: validation, ActorID: p.ActorID}
			if cmd.Flags().Changed("comment") {
				opts.Comment = &comment
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				found, err := ws.Engine.JudgeReport(ctx, opts)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("report %s: %w", args[0], repo.ErrNotFound)
				}
				rep, err := ws.Engine.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(rep)
			})
		},
	}
	cmd.Flags().StringVar(&validation, "validation", "", "verdict code or label")
	cmd.Flags().StringVar(&comment, "comment", "", "comment for the brigade")
	return cmd
}

func reportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report and its photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				found, err := ws.Engine.DeleteReport(ctx, args[0], p.ActorID)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("report %s: %w", args[0], repo.ErrNotFound)
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func reportPhotoCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "photo <report-id> <filename>",
		Short: "Copy a stored photo to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				data, err := ws.Engine.PhotoBytes(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				dest := out
				if dest == "" {
					dest = args[1]
				}
				if err := os.WriteFile(dest, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d bytes)\n", dest, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "destination file (default the stored name)")
	return cmd
}
