package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"github.com/deepaksharma/haystack-span-converter/internal/reporter"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const quarantineSource = "haystack-convert"

type convertOptions struct {
	input          string
	output         string
	workers        int
	idOverflow     string
	quarantinePath string
}

func newConvertCommand(root *rootOptions) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a JSON array of Zipkin v2 spans",
		Example: `haystack-convert convert --input spans.json
cat spans.json | haystack-convert convert --id-overflow reject --quarantine /var/lib/haystack/quarantine.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, root.logger, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "File with a JSON array of Zipkin v2 spans, - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "File to write Haystack spans to, - for stdout")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", runtime.NumCPU(), "Number of spans converted concurrently")
	cmd.Flags().StringVar(&opts.idOverflow, "id-overflow", converter.IDOverflowTruncate, "Policy for ids wider than 64 bits: truncate or reject")
	cmd.Flags().StringVar(&opts.quarantinePath, "quarantine", "", "BoltDB file receiving spans that fail conversion")
	return cmd
}

func runConvert(cmd *cobra.Command, logger *zap.Logger, opts *convertOptions) error {
	if opts.workers <= 0 {
		return fmt.Errorf("workers must be greater than 0, got %d", opts.workers)
	}

	conv, err := converter.New(converter.Config{IDOverflow: opts.idOverflow}, logger)
	if err != nil {
		return err
	}

	var store *quarantine.Store
	if opts.quarantinePath != "" {
		store, err = quarantine.Open(quarantine.Config{Path: opts.quarantinePath}, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	data, err := readInput(cmd, opts.input)
	if err != nil {
		return err
	}
	raws, err := zipkinv2.UnmarshalList(data)
	if err != nil {
		return err
	}

	spans, failures := convertAll(cmd.Context(), conv, store, raws, opts.workers)
	if err := writeOutput(cmd, opts.output, spans); err != nil {
		return err
	}

	logger.Info("Conversion finished",
		zap.Int("spans", len(raws)),
		zap.Int("failed", len(multierr.Errors(failures))))
	if failures != nil {
		return fmt.Errorf("%d of %d spans failed: %w", len(multierr.Errors(failures)), len(raws), failures)
	}
	return nil
}

// convertAll converts spans concurrently and returns the results in input order.
// Spans that fail are nil in the result and reported in the combined error.
func convertAll(
	ctx context.Context,
	conv *converter.Converter,
	store *quarantine.Store,
	raws [][]byte,
	workers int,
) ([]*haystack.Span, error) {
	results := make([]*haystack.Span, len(raws))
	errs := make([]error, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := convertOne(conv, raw)
			if err != nil {
				errs[i] = fmt.Errorf("span %d: %w", i, err)
				if store != nil {
					if _, qerr := store.Put(ctx, quarantineSource, raw, err.Error()); qerr != nil {
						errs[i] = multierr.Append(errs[i], qerr)
					}
				}
				return nil
			}
			results[i] = &out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, multierr.Combine(errs...)
}

func convertOne(conv *converter.Converter, raw []byte) (haystack.Span, error) {
	in, err := zipkinv2.Unmarshal(raw)
	if err != nil {
		return haystack.Span{}, err
	}
	return conv.Convert(in)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, path string, spans []*haystack.Span) (err error) {
	w := cmd.OutOrStdout()
	if path != "-" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("failed to create output: %w", cerr)
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		w = f
	}

	sink := reporter.NewWriterSink(w)
	for _, span := range spans {
		if span == nil {
			continue
		}
		if err := sink.Write(*span); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
