package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline coordinates field work between a section supervisor and the brigades.
Core concepts:
- Roles: chef_section plans tasks, judges reports and receives material requests; chef_brigade runs phases, files reports and asks for material.
- Tasks: planned work with ordered phases; progress is the share of phases done.
- Phases: waiting -> in_progress -> done, never backwards.
- Reports: a brigade's daily account of a phase, with photos, approved or sent back by the section.
- Notifications: each role polls its own feed; 'fl notif watch' keeps one open.
- Event log: diary of changes, view with 'fl log tail'.`,
	SilenceUsage: true,
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
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/fieldline.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", string(domain.RoleSection), "acting role (chef_section or chef_brigade)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "role"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(notifCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// principal is the local caller as given by --actor-id and --role.
func principal() auth.Principal {
	return auth.Principal{
		ActorID: viper.GetString("actor-id"),
		Role:    domain.Role(viper.GetString("role")),
		Source:  "cli",
	}
}

// requireRole applies the same role rules as the HTTP API to local commands.
func requireRole(roles ...domain.Role) (auth.Principal, error) {
	p := principal()
	if err := auth.Require(p, roles...); err != nil {
		return p, err
	}
	return p, nil
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{ConfigPath: viper.GetString("config")})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
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

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}
