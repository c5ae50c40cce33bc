// Command fixedts parses fixed layout timestamps and reports their fields.
//
//   fixedts 2020-02-03T08:30:03.14152987647-0230
//   printf '2020-02-03 08:30:03\n' | fixedts --json
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/imarsman/fixedts"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/cobra"
)

type options struct {
	json      bool
	rounding  string
	maxLength int
	verbose   bool
}

// report the JSON form of one parsed input
type report struct {
	Input         string `json:"input"`
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	Day           int    `json:"day"`
	Hour          int    `json:"hour"`
	Minute        int    `json:"minute"`
	Second        int    `json:"second"`
	Nanosecond    int    `json:"nanosecond"`
	IsUTC         bool   `json:"is_utc"`
	HasOffset     bool   `json:"has_offset"`
	OffsetSeconds int    `json:"offset_seconds"`
	UnixNano      *int64 `json:"unix_nano,omitempty"`
}

var errInputsFailed = errors.New("one or more inputs failed to parse")

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "fixedts [timestamp...]",
		Short: "Parse YYYY-MM-DD(T| )HH:MM:SS[.fraction][Z|±HH[:MM]] timestamps",
		Long: "Parse each timestamp argument, or one timestamp per line of stdin when\n" +
			"there are no arguments, and report its fields.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), opts.verbose)

			policy, err := fixedts.ParseRoundingPolicy(opts.rounding)
			if err != nil {
				logger.Error().Err(err).Msg("bad --rounding")
				return err
			}
			parser := fixedts.Parser{Rounding: policy, MaxLength: opts.maxLength}

			inputs := args
			if len(inputs) == 0 {
				inputs, err = readLines(cmd.InOrStdin())
				if err != nil {
					logger.Error().Stack().Err(err).Msg("reading stdin")
					return err
				}
			}

			return run(parser, opts.json, inputs, cmd.OutOrStdout(), logger)
		},
	}

	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.Flags().BoolVar(&opts.json, "json", false, "write one JSON object per input")
	cmd.Flags().StringVar(&opts.rounding, "rounding", fixedts.RoundNinthDigit.String(),
		"what a 10th fraction digit does: round, truncate or carry")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 64, "reject inputs longer than this, 0 for no limit")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning input")
	}
	return lines, nil
}

// run parse every input and write a report for each. Failures are logged and
// the rest of the inputs are still processed.
func run(parser fixedts.Parser, asJSON bool, inputs []string, out io.Writer, logger zerolog.Logger) error {
	failed := 0
	enc := json.NewEncoder(out)

	for i, in := range inputs {
		ts, err := parser.Parse(in)
		if err != nil {
			failed++
			err = errors.Wrapf(err, "input %d", i+1)
			logger.Error().Stack().Err(err).Str("input", in).Msg("could not parse timestamp")
			if !asJSON {
				fmt.Fprintf(out, "%s\n  FAILED\n", in)
			}
			continue
		}
		logger.Debug().
			Str("input", in).
			Int("nanosecond", ts.Nanosecond).
			Bool("is_utc", ts.IsUTC).
			Bool("has_offset", ts.HasOffset).
			Int("offset_seconds", ts.OffsetSeconds).
			Msg("parsed timestamp")

		if asJSON {
			if err := enc.Encode(newReport(in, ts)); err != nil {
				return errors.Wrap(err, "encoding report")
			}
			continue
		}
		if err := writeText(out, in, ts, logger); err != nil {
			return errors.Wrap(err, "writing report")
		}
	}

	if failed > 0 {
		logger.Error().Int("failed", failed).Int("total", len(inputs)).Msg("done")
		return errInputsFailed
	}
	return nil
}

func newReport(in string, ts fixedts.Timestamp) report {
	r := report{
		Input:         in,
		Year:          ts.Year,
		Month:         ts.Month,
		Day:           ts.Day,
		Hour:          ts.Hour,
		Minute:        ts.Minute,
		Second:        ts.Second,
		Nanosecond:    ts.Nanosecond,
		IsUTC:         ts.IsUTC,
		HasOffset:     ts.HasOffset,
		OffsetSeconds: ts.OffsetSeconds,
	}
	if nsec, ok := ts.UnixNano(); ok {
		r.UnixNano = &nsec
	}
	return r
}

func writeText(out io.Writer, in string, ts fixedts.Timestamp, logger zerolog.Logger) error {
	var zone string
	switch {
	case ts.IsUTC:
		zone = "UTC"
	case ts.HasOffset:
		offset, err := ts.OffsetString(true)
		if err != nil {
			logger.Warn().Err(err).Str("input", in).Int("offset_seconds", ts.OffsetSeconds).
				Msg("offset can't be shown as hours and minutes")
			offset = "out of range"
		}
		zone = "offset " + offset
	default:
		zone = "none"
	}

	_, err := fmt.Fprintf(out,
		"%s\n  year   %d\n  month  %d\n  day    %d\n  hour   %d\n  minute %d\n  second %d\n  ns     %d\n  offset %d\n  zone   %s\n",
		in, ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Nanosecond, ts.OffsetSeconds, zone)
	return err
}
