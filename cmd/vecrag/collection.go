package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnsureCmd(c *cli) *cobra.Command {
	var dimension int

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the collection or verify its dimension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dimension > 0 {
				c.cfg.Collection.Dimension = dimension
			}

			app, err := c.app(ctx, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.EnsureCollection(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %s ready (dimension %d)\n",
				c.cfg.Collection.Name, c.cfg.Collection.Dimension)
			return nil
		},
	}

	cmd.Flags().IntVar(&dimension, "dimension", 0, "embedding dimension (default from config)")
	return cmd
}

func newCountCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of documents in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := c.app(ctx, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Assembler.Count(ctx, c.cfg.Collection.Name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
