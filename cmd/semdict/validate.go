package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

func (c *cli) validateCmd() *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate model files against the dictionary",
		Long: `Validate compiles each model file against the builtin models and the
configured models directory. A file replacing a model that is already
published is checked for incompatible changes. Files may import each other;
they are validated in import order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.validate(cmd.Context(), cmd.OutOrStdout(), domain, args)
		},
	}
	cmd.Flags().StringVar(&domain, "tenant", "", "Tenant domain to validate for (default tenant if empty)")
	return cmd
}

func (c *cli) validate(ctx context.Context, out io.Writer, domain string, files []string) error {
	models, err := loadModels(files)
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, c.cfg, c.logger, false)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	ctx = tenant.WithDomain(ctx, domain)
	failed := 0
	for _, m := range schema.SortByImports(models) {
		if err := validateOne(ctx, svc.dict, m); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", m.Name, err)
			continue
		}
		fmt.Fprintf(out, "OK   %s\n", m.Name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d models failed validation", failed, len(models))
	}
	return nil
}

// validateOne validates m and publishes it so that later files can import it.
func validateOne(ctx context.Context, d *dictionary.Dictionary, m *schema.Model) error {
	if err := d.ValidateModel(ctx, m); err != nil {
		return err
	}
	_, err := d.PutModel(ctx, m)
	return err
}

func loadModels(files []string) ([]*schema.Model, error) {
	models := make([]*schema.Model, 0, len(files))
	for _, f := range files {
		m, err := schema.LoadFile(f)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}
