package main

import (
	"alcyxob/plan-delivery/internal/app"
	"alcyxob/plan-delivery/internal/config"
	"alcyxob/plan-delivery/internal/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

// cli carries flag state for one command tree.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("FITCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "fitctl",
		Short:         "Operate plan deliveries and content reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", ".", "directory containing config.yaml")
	pf.String("tenant", "", "tenant id")
	pf.StringP("output", "o", "table", "output format: table, json or yaml")
	pf.Bool("verbose", false, "log to stderr")
	for _, name := range []string{"config", "tenant", "output", "verbose"} {
		_ = c.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(c.assignmentsCmd(), c.approvalsCmd(), c.tokenCmd(), c.indexesCmd())
	return root
}

func (c *cli) loadConfig() (config.Config, error) {
	return config.LoadConfig(c.v.GetString("config"))
}

// withApp builds the full service graph for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewNop()
	if c.v.GetBool("verbose") {
		if log, err = logger.New("dev"); err != nil {
			return err
		}
		defer log.Sync()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(ctx, a)
}

func (c *cli) tenantID() (primitive.ObjectID, error) {
	raw := c.v.GetString("tenant")
	if raw == "" {
		return primitive.NilObjectID, errors.New("--tenant (or FITCTL_TENANT) is required")
	}
	return parseID("tenant", raw)
}

func parseID(what, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}

// render writes v as JSON or YAML, or calls table for the default format.
func (c *cli) render(w io.Writer, v any, header table.Row, rows func(add func(table.Row))) error {
	switch format := c.v.GetString("output"); format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so field names match the API.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	case "table", "":
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(header)
		rows(func(r table.Row) { tw.AppendRow(r) })
		tw.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
