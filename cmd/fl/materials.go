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

func materialCmd() *cobra.Command {
	mat := &cobra.Command{
		Use:   "material",
		Short: "Material catalog",
	}
	mat.AddCommand(materialAddCmd())
	mat.AddCommand(materialListCmd())
	return mat
}

func materialAddCmd() *cobra.Command {
	var opts engine.MaterialCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a material to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleSection)
			if err != nil {
				return err
			}
			opts.ActorID = p.ActorID
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				m, err := ws.Engine.AddMaterial(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "material name")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "unit (sac, m3, ...)")
	cmd.Flags().IntVar(&opts.Stock, "stock", 0, "stock on hand")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func materialListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListMaterials(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Unit", "Stock"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Unit, m.Stock})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// parseLine reads "nom=quantite".
func parseLine(s string) (domain.LineItem, error) {
	name, qty, found := strings.Cut(s, "=")
	if !found {
		return domain.LineItem{}, fmt.Errorf("line %q: expected name=quantity", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(qty))
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("line %q: quantity must be a number", s)
	}
	return domain.LineItem{Name: strings.TrimSpace(name), Quantity: n}, nil
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "request",
		Short: "Material requests",
		Long:  "A brigade asks the section for material on a task. The request is only kept if the section is notified.",
	}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestGetCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var taskID string
	var lines []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request materials for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole(domain.RoleBrigade)
			if err != nil {
				return err
			}
			opts := engine.MaterialRequestOptions{TaskID: taskID, ActorID: p.ActorID}
			for _, s := range lines {
				item, err := parseLine(s)
				if err != nil {
					return err
				}
				opts.Lines = append(opts.Lines, item)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				req, err := ws.Engine.RequestMaterials(ctx, opts)
				if err != nil {
					return err
				}
				return printRequest(req)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "requested item as name=quantity (repeatable)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func printRequest(req domain.MaterialRequest) error {
	if viper.GetBool("json") {
		return printJSON(req)
	}
	fmt.Printf("%s  task %s  [%s]  %s\n", req.ID, req.TaskID, req.Status, req.CreatedAt)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Material", "Name", "Quantity"})
	for _, l := range req.Lines {
		tw.AppendRow(table.Row{l.MaterialID, l.Name, l.Quantity})
	}
	tw.Render()
	return nil
}

func requestListCmd() *cobra.Command {
	var f repo.MaterialRequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List material requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				reqs, err := ws.Engine.ListMaterialRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reqs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Status", "Lines", "Created"})
				for _, r := range reqs {
					tw.AppendRow(table.Row{r.ID, r.TaskID, r.Status, len(r.Lines), r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func requestGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a material request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				req, err := ws.Engine.GetMaterialRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printRequest(req)
			})
		},
	}
}
