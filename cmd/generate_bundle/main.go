// Command generate_bundle writes a synthetic record bundle for exercising the
// import pipeline.
// Usage: go run ./cmd/generate_bundle --records 20000 --duplicates 0.1 --out bundle.json
package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/importers"
)

// Public domain quotes used as record content.
var quotes = []string{
	"You have power over your mind not outside events",
	"The happiness of your life depends upon the quality of your thoughts",
	"Waste no more time arguing about what a good man should be",
	"The soul becomes dyed with the color of its thoughts",
	"We suffer more often in imagination than in reality",
	"Difficulties strengthen the mind as labor does the body",
	"It is not that we have a short time to live but that we waste a lot of it",
	"It is not the strongest of the species that survives",
	"Café crème à la française",
	"Ångström units measure wavelengths",
}

type options struct {
	records    int
	version    string
	out        string
	duplicates float64
	blanks     int
	seed       uint64
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "generate_bundle",
		Short: "Generate a synthetic import bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := generate(opts, time.Now())
			if err != nil {
				return err
			}
			if opts.out == "" || opts.out == "-" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			}
			if err := exporters.WriteFile(bundle, opts.out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Generated %d records at %s\n", len(bundle.Records), opts.out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.records, "records", "n", 1000, "number of records")
	cmd.Flags().StringVar(&opts.version, "version", string(importers.Version2), "bundle version: 1.0 or 2.0")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().Float64Var(&opts.duplicates, "duplicates", 0, "fraction of records that repeat an earlier tag set")
	cmd.Flags().IntVar(&opts.blanks, "blank-every", 0, "make every Nth record whitespace only (0 disables)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// generate builds a bundle of opts.records records. Duplicates reuse the
// tokens of an earlier record in a different order and case, so they share
// its duplicate key under the default rules.
func generate(opts options, now time.Time) (*exporters.Bundle, error) {
	version := importers.Version(opts.version)
	if !version.Valid() {
		return nil, fmt.Errorf("unsupported bundle version %q", opts.version)
	}
	if opts.records < 0 {
		return nil, fmt.Errorf("--records must not be negative, got %d", opts.records)
	}
	if opts.duplicates < 0 || opts.duplicates >= 1 {
		return nil, fmt.Errorf("--duplicates must be in [0, 1), got %g", opts.duplicates)
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	start := now.Add(-time.Duration(opts.records) * time.Minute).UTC()

	bundle := &exporters.Bundle{
		Version: version,
		Records: make([]exporters.ExportRecord, 0, opts.records),
		Metadata: exporters.ExportMetadata{
			ExportedAt:  now.UTC().Format(time.RFC3339),
			RecordCount: opts.records,
		},
	}
	var originals []string
	for i := 0; i < opts.records; i++ {
		var content string
		switch {
		case opts.blanks > 0 && (i+1)%opts.blanks == 0:
			content = "   "
		case len(originals) > 0 && rng.Float64() < opts.duplicates:
			content = reshuffle(rng, originals[rng.IntN(len(originals))])
		default:
			content = fmt.Sprintf("%s n%d", quotes[rng.IntN(len(quotes))], i)
			originals = append(originals, content)
		}

		created := start.Add(time.Duration(i) * time.Minute)
		rec := exporters.ExportRecord{
			Content:   content,
			CreatedAt: created.Format(time.RFC3339),
		}
		if version == importers.Version2 {
			rec.UpdatedAt = created.Add(time.Duration(rng.IntN(3600)) * time.Second).Format(time.RFC3339)
		}
		bundle.Records = append(bundle.Records, rec)
	}
	return bundle, nil
}

func reshuffle(rng *rand.Rand, content string) string {
	tokens := strings.Fields(content)
	rng.Shuffle(len(tokens), func(i, j int) { tokens[i], tokens[j] = tokens[j], tokens[i] })
	tokens[0] = strings.ToUpper(tokens[0])
	return strings.Join(tokens, " ")
}
