package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
	"fieldline/internal/tui"
	fieldlinesdk "fieldline/sdk/go"
)

func notifCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "notif",
		Short: "Notifications for the acting role",
		Long:  "Each role reads its own feed. --role picks whose feed you look at.",
	}
	n.AddCommand(notifListCmd())
	n.AddCommand(notifReadCmd())
	n.AddCommand(notifReadAllCmd())
	n.AddCommand(notifWatchCmd())
	return n
}

func notifListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Channel.ListForRole(ctx, p.Role, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := make([]map[string]any, 0, len(items))
					for _, n := range items {
						out = append(out, map[string]any{"notification": n, "redirect": notify.RedirectURL(n.Role, n.Payload)})
					}
					return printJSON(map[string]any{"items": out, "unread": notify.Unread(items)})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "", "Title", "Message", "Open", "Created"})
				for _, n := range items {
					mark := "●"
					if n.Read {
						mark = ""
					}
					tw.AppendRow(table.Row{n.ID, mark, n.Title, n.Message, notify.RedirectURL(n.Role, n.Payload), n.CreatedAt})
				}
				tw.Render()
				fmt.Printf("%d unread\n", notify.Unread(items))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "window size (default from config)")
	return cmd
}

func notifReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Engine.Repo.GetNotification(ctx, args[0])
				if err != nil {
					return err
				}
				if n.Role != p.Role {
					return fmt.Errorf("notification %s: %w", args[0], repo.ErrNotFound)
				}
				ok, err := ws.Channel.MarkRead(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("notification %s not found", args[0])
				}
				fmt.Println("read", args[0])
				return nil
			})
		},
	}
}

func notifReadAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification of the role read",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Channel.MarkAllRead(ctx, p.Role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"updated": n})
				}
				fmt.Printf("%d marked read\n", n)
				return nil
			})
		},
	}
}

func notifWatchCmd() *cobra.Command {
	var limit int
	var interval time.Duration
	var serverURL, token string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the feed open and highlight new notifications",
		Long:  "Polls the local workspace, or a running server when --server is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := requireRole()
			if err != nil {
				return err
			}
			if serverURL != "" {
				client := fieldlinesdk.New(serverURL)
				client.BearerToken = token
				client.Role = p.Role
				if token == "" {
					client.APIKey = viper.GetString("api-key")
				}
				every := interval
				if every <= 0 {
					every = 5 * time.Second
				}
				return tui.NewWatch(client, p.Role, limit, every).Run()
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				every := interval
				if every <= 0 {
					every = ws.Config.PollInterval()
				}
				return tui.NewWatch(ws.Channel, p.Role, ws.Config.ClampLimit(limit), every).Run()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "window size (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL, e.g. http://127.0.0.1:8080")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --server (see 'fl token')")
	return cmd
}
