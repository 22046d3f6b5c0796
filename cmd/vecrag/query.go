package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newQueryCmd(c *cli) *cobra.Command {
	var (
		k           int
		contextOnly bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Show the documents nearest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			if k == 0 {
				k = c.cfg.Retrieval.TopK
			}

			app, err := c.app(ctx, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			coll := c.cfg.Collection.Name

			if contextOnly {
				text, err := app.Assembler.RetrieveContext(ctx, coll, query, k)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}

			results, err := app.Assembler.Retrieve(ctx, coll, query, k)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for _, r := range results {
				fmt.Fprintf(out, "%.6f\t%d\t%s\n", r.Distance, r.Document.ID, r.Document.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of neighbours (default from config)")
	cmd.Flags().BoolVar(&contextOnly, "context", false, "print the newline-joined context only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newAskCmd(c *cli) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Retrieve context and generate an answer (context only without a generator)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if k == 0 {
				k = c.cfg.Retrieval.TopK
			}

			app, err := c.app(ctx, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			coll := c.cfg.Collection.Name
			question := strings.Join(args, " ")

			gen, err := app.Generator()
			if err != nil {
				c.log.Warn("generation disabled, printing retrieved context", zap.Error(err))
				text, err := app.Assembler.RetrieveContext(ctx, coll, question, k)
				if err != nil {
					return err
				}
				if text == "" {
					fmt.Fprintln(out, "No context available.")
					return nil
				}
				fmt.Fprintln(out, text)
				return nil
			}

			ans, err := app.Assembler.Answer(ctx, gen, coll, question, k)
			if err != nil {
				return err
			}

			switch {
			case ans.NoContext && ans.Degraded:
				fmt.Fprintln(out, "No context available (embedding quota exceeded).")
			case ans.NoContext:
				fmt.Fprintln(out, "No context available.")
			case ans.Degraded:
				fmt.Fprintln(out, "Generation quota exceeded. Retrieved context:")
				fmt.Fprintln(out, ans.Context)
			default:
				fmt.Fprintln(out, ans.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of context documents (default from config)")
	return cmd
}
