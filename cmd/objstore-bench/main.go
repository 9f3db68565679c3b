// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command objstore-bench drives a lib/objstore.Store with producer and
// consumer goroutines, to exercise Put and Get end-to-end and report
// throughput and final store statistics.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/go/lowmemjson"

	"github.com/alipay/ray/lib/blob"
	"github.com/alipay/ray/lib/objectid"
	"github.com/alipay/ray/lib/objstore"
	"github.com/alipay/ray/lib/otelog"
)

func main() {
	verbosity := otelog.LevelFlag{Level: dlog.LogLevelInfo}

	var (
		maxBytes    int
		objSize     int
		numProducts int
		numWaiters  int
		timeoutMs   int64
		reportJSON  bool
	)

	argparser := &cobra.Command{
		Use:   "objstore-bench [flags]",
		Short: "Exercise an in-process object store with concurrent producers and waiters",

		Args: cliutil.WrapPositionalArgs(cobra.NoArgs),

		SilenceErrors: true,
		SilenceUsage:  true,

		CompletionOptions: cobra.CompletionOptions{ //nolint:exhaustruct
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.Flags().Var(&verbosity, "verbosity", "set the verbosity")
	argparser.Flags().IntVar(&maxBytes, "max-bytes", 1<<20, "store capacity, in `bytes`")
	argparser.Flags().IntVar(&objSize, "object-size", 4096, "size, in `bytes`, of each produced object")
	argparser.Flags().IntVar(&numProducts, "objects", 256, "`count` of objects to produce")
	argparser.Flags().IntVar(&numWaiters, "waiters", 8, "`count` of concurrent Get waiters")
	argparser.Flags().Int64Var(&timeoutMs, "timeout-ms", 2000, "`milliseconds` each waiter blocks before giving up (-1 = forever)")
	argparser.Flags().BoolVar(&reportJSON, "report-json", false, "emit the final report as JSON instead of text")

	argparser.RunE = func(cmd *cobra.Command, args []string) error {
		if numWaiters < 1 {
			return fmt.Errorf("--waiters must be at least 1")
		}

		logger := otelog.NewLogger(os.Stderr, verbosity.Level)
		ctx := dlog.WithLogger(cmd.Context(), logger)

		store := objstore.New(maxBytes)
		defer store.Close()

		ids := make([]objectid.ID, numProducts)
		for i := range ids {
			id, err := objectid.New()
			if err != nil {
				return err
			}
			ids[i] = id
		}

		var puts, hits, misses uint64
		start := time.Now()

		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
			EnableSignalHandling: true,
		})

		grp.Go("producer", func(ctx context.Context) error {
			data := make([]byte, objSize)
			for _, id := range ids {
				if _, err := rand.Read(data); err != nil {
					return err
				}
				if err := store.Put(ctx, id, blob.Blob{Data: append([]byte(nil), data...)}); err != nil {
					dlog.Infof(ctx, "objstore-bench: put %v: %v", id, err)
					continue
				}
				atomic.AddUint64(&puts, 1)
			}
			return nil
		})

		for w := 0; w < numWaiters; w++ {
			w := w
			grp.Go(fmt.Sprintf("waiter-%d", w), func(ctx context.Context) error {
				for i, id := range ids {
					if i%numWaiters != w {
						continue
					}
					handles, err := store.Get(ctx, []objectid.ID{id}, timeoutMs)
					if err != nil {
						return err
					}
					if handles[0] != nil {
						atomic.AddUint64(&hits, 1)
						handles[0].Release()
					} else {
						atomic.AddUint64(&misses, 1)
					}
				}
				return nil
			})
		}

		if err := grp.Wait(); err != nil {
			return err
		}

		report := struct {
			Elapsed string         `json:"elapsed"`
			Puts    uint64         `json:"puts"`
			Hits    uint64         `json:"hits"`
			Misses  uint64         `json:"misses"`
			Stats   objstore.Stats `json:"stats"`
		}{
			Elapsed: time.Since(start).String(),
			Puts:    atomic.LoadUint64(&puts),
			Hits:    atomic.LoadUint64(&hits),
			Misses:  atomic.LoadUint64(&misses),
			Stats:   store.Stats(),
		}

		if reportJSON {
			return lowmemjson.NewEncoder(os.Stdout).Encode(report)
		}
		fmt.Fprintf(os.Stdout, "elapsed=%s puts=%d hits=%d misses=%d resident=%d/%d entries=%d evictions=%d\n",
			report.Elapsed, report.Puts, report.Hits, report.Misses,
			report.Stats.ResidentBytes, report.Stats.MaxBytes, report.Stats.EntryCount, report.Stats.Evictions)
		return nil
	}

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
