package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/app"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/clifmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type connectionOut struct {
	Handle    string `yaml:"handle"`
	OwnerID   int64  `yaml:"owner_id"`
	CreatedAt string `yaml:"created_at,omitempty"`
}

func newConnectionsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List stored connection to owner mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore(appConfigFromViper())
			if err != nil {
				return err
			}
			defer store.Close()

			resolver := identity.New(store, identity.Options{})
			if err := resolver.Load(cmd.Context()); err != nil {
				return err
			}
			return printConnections(cmd.OutOrStdout(), resolver.Connections(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|yaml.")
	return cmd
}

func printConnections(out io.Writer, recs []identity.ConnectionRecord, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		rows := make([][]string, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, []string{r.Handle, strconv.FormatInt(r.OwnerID, 10), formatTime(r.CreatedAt)})
		}
		clifmt.PrintTable(out, clifmt.TableOptions{
			Title:     "Connections",
			Headers:   []string{"HANDLE", "OWNER", "CREATED"},
			Rows:      rows,
			EmptyText: "No connections.",
		})
		return nil
	case "yaml":
		items := make([]connectionOut, 0, len(recs))
		for _, r := range recs {
			items = append(items, connectionOut{Handle: r.Handle, OwnerID: r.OwnerID, CreatedAt: formatTime(r.CreatedAt)})
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"connections": items}); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
