package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIndexCmd(c *cli) *cobra.Command {
	var (
		file        string
		title       string
		seedIfEmpty bool
	)

	cmd := &cobra.Command{
		Use:   "index [text...]",
		Short: "Embed and store texts",
		Long: `Embed each text and store it in the collection, in order.

Texts come from the arguments or from --file (one text per line, "-" for
stdin). With --title the single argument is treated as a description and
stored as "title description", the way product rows are indexed.

Texts rejected by the provider's quota are skipped (or stop the batch
with retrieval.quota_policy=abort) and reported, not raised.

Examples:
  vecrag index "El salar de Uyuni es el desierto de sal más grande del planeta."
  vecrag index --file docs.txt --seed-if-empty
  vecrag index -c products --title "Laptop gamer" "Laptop potente con RTX 3060"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			texts, err := collectTexts(args, file, title, cmd.InOrStdin())
			if err != nil {
				return err
			}

			app, err := c.app(ctx, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			coll := c.cfg.Collection.Name
			if err := app.EnsureCollection(ctx); err != nil {
				return err
			}

			if seedIfEmpty {
				n, err := app.Assembler.Count(ctx, coll)
				if err != nil {
					return err
				}
				if n > 0 {
					c.log.Info("collection already seeded", zap.String("collection", coll), zap.Int("count", n))
					fmt.Fprintf(cmd.OutOrStdout(), "%s already holds %d documents, skipping\n", coll, n)
					return nil
				}
			}

			res, err := app.Assembler.IndexTexts(ctx, coll, texts)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "indexed %d of %d texts into %s\n", res.Indexed, len(texts), coll)
			for _, it := range res.Skipped() {
				fmt.Fprintf(out, "  skipped #%d: %v\n", it.Index, it.Err)
			}
			if res.Aborted {
				fmt.Fprintln(out, "  stopped early: quota exceeded")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read texts from a file, one per line (- for stdin)")
	cmd.Flags().StringVar(&title, "title", "", "title prefixed to a single description")
	cmd.Flags().BoolVar(&seedIfEmpty, "seed-if-empty", false, "only index when the collection is empty")
	return cmd
}

func collectTexts(args []string, file, title string, stdin io.Reader) ([]string, error) {
	texts := append([]string(nil), args...)

	if file != "" {
		lines, err := readLines(file, stdin)
		if err != nil {
			return nil, err
		}
		texts = append(texts, lines...)
	}

	if title != "" {
		if len(texts) != 1 {
			return nil, errors.New("--title needs exactly one description")
		}
		texts[0] = strings.TrimSpace(title) + " " + strings.TrimSpace(texts[0])
	}

	if len(texts) == 0 {
		return nil, errors.New("no texts given")
	}
	return texts, nil
}

func readLines(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open texts: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read texts: %w", err)
	}
	return lines, nil
}
