package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

func (c *cli) diffCmd() *cobra.Command {
	var (
		domain string
		text   bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Classify the changes between two versions of a model",
		Long: `Diff compiles both versions against the dictionary and lists every
created, updated and deleted type, aspect and property. Changes that an
update would be rejected for are marked with "!".

With --text the YAML documents are compared line by line instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.diff(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], diffOptions{
				domain: domain,
				text:   text,
				all:    all,
			})
		},
	}
	cmd.Flags().StringVar(&domain, "tenant", "", "Tenant domain to compile against")
	cmd.Flags().BoolVar(&text, "text", false, "Show a line diff of the model documents")
	cmd.Flags().BoolVar(&all, "all", false, "Include unchanged elements")
	return cmd
}

type diffOptions struct {
	domain string
	text   bool
	all    bool
}

func (c *cli) diff(ctx context.Context, out io.Writer, oldPath, newPath string, opts diffOptions) error {
	prev, err := schema.LoadFile(oldPath)
	if err != nil {
		return err
	}
	next, err := schema.LoadFile(newPath)
	if err != nil {
		return err
	}

	if opts.text {
		text, err := schema.TextDiff(prev, next)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, text)
		return err
	}

	svc, err := newServices(ctx, c.cfg, c.logger, false)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	v, err := svc.dict.View(tenant.WithDomain(ctx, opts.domain))
	if err != nil {
		return err
	}
	prevModel, err := dictionary.Compile(prev, v, v.Namespaces())
	if err != nil {
		return fmt.Errorf("compile %s: %w", oldPath, err)
	}
	nextModel, err := dictionary.Compile(next, v, v.Namespaces())
	if err != nil {
		return fmt.Errorf("compile %s: %w", newPath, err)
	}

	diffs := dictionary.Diff(prevModel, nextModel)
	bindings := append(append([]namespace.Namespace(nil), next.Imports...), next.Namespaces...)
	ns := namespace.Overlay(namespace.NewMap(bindings...), v.Namespaces())
	breaking := 0
	for _, d := range diffs {
		if d.Diff == dictionary.DiffUnchanged && !opts.all {
			continue
		}
		mark := " "
		if d.Breaking() {
			mark = "!"
			breaking++
		}
		line := fmt.Sprintf("%s %-11s %-9s %s", mark, d.Kind, d.Diff, d.Name.PrefixString(ns))
		if !d.Class.IsZero() {
			line += " on " + d.Class.PrefixString(ns)
		}
		fmt.Fprintln(out, line)
	}
	if breaking > 0 {
		fmt.Fprintf(out, "\n%d incompatible change(s)\n", breaking)
	}
	return nil
}
