package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/banktalk/internal/cli"
	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/service"
)

// replayResult is the outcome of one replayed utterance.
type replayResult struct {
	err        error
	text       string
	module     model.ModuleCode
	submodule  string
	resolution model.Resolution
}

func replayCmd() *cobra.Command {
	var (
		concurrency int
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Classify and resolve a file of utterances",
		Long: `Send each non-empty line of the file to the NLP service, resolve the
classification through the rule table, and print how often each component
was selected. Lines starting with # are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			utterances := parseUtterances(data)
			if len(utterances) == 0 {
				return errors.New("no utterances to replay")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openClassifier(); err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, cancel := handler.HandleInterrupts(cmd.Context(), "Replay",
				"Results collected so far are summarized below.")
			defer cancel()

			bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(utterances), "Replaying")
			results := replay(ctx, a.classifier, a.resolver, a.cfg.User.ID, utterances, concurrency, func() {
				_ = bar.Add(1)
			})
			_ = bar.Finish()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			if verbose {
				fmt.Fprintln(out, formatReplayDetails(results))
			}
			fmt.Fprintln(out, formatReplaySummary(results))
			if handler.WasInterrupted() {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "utterances classified in parallel")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the result of every utterance")
	return cmd
}

func parseUtterances(data []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// replay classifies utterances with at most concurrency calls in flight.
// Results keep the input order; utterances not attempted before ctx ends
// carry ctx's error.
func replay(ctx context.Context, classifier service.Classifier, res *resolver.Resolver, userID string,
	utterances []string, concurrency int, done func()) []replayResult {
	results := make([]replayResult, len(utterances))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, text := range utterances {
		results[i] = replayResult{text: text}
		if gctx.Err() != nil {
			results[i].err = gctx.Err()
			continue
		}
		g.Go(func() error {
			r := replayResult{text: text}
			resp, err := classifier.ProcessText(gctx, userID, text)
			if err != nil {
				r.err = err
				common.LogDebug("Replay classification failed", common.Fields{"text": text, "error": err.Error()})
			} else {
				r.module, r.submodule = resp.ModuleCode, resp.SubmoduleCode
				r.resolution = res.Resolve(resp, nil, nil)
			}
			results[i] = r
			done()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func formatReplaySummary(results []replayResult) string {
	counts := make(map[string]int)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		counts[string(r.resolution.Component)]++
	}

	components := make([]string, 0, len(counts))
	for c := range counts {
		components = append(components, c)
	}
	sort.Slice(components, func(i, j int) bool {
		if counts[components[i]] != counts[components[j]] {
			return counts[components[i]] > counts[components[j]]
		}
		return components[i] < components[j]
	})

	rows := make([][]string, 0, len(components)+1)
	for _, c := range components {
		rows = append(rows, []string{c, strconv.Itoa(counts[c])})
	}
	if failed > 0 {
		rows = append(rows, []string{"(classification failed)", strconv.Itoa(failed)})
	}

	title := cli.FormatTitle(fmt.Sprintf("%s Replayed %d utterances", cli.ChartIcon, len(results)))
	return title + "\n" + cli.FormatTable([]string{"COMPONENT", "COUNT"}, rows)
}

func formatReplayDetails(results []replayResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			rows = append(rows, []string{r.text, "-", "error: " + r.err.Error()})
			continue
		}
		rows = append(rows, []string{
			r.text,
			fmt.Sprintf("%s/%s", r.module, r.submodule),
			fmt.Sprintf("%s (%s)", r.resolution.Component, r.resolution.Strategy),
		})
	}
	return cli.FormatTable([]string{"UTTERANCE", "CLASSIFICATION", "COMPONENT"}, rows)
}
