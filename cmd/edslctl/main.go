// Command edslctl is the thin CLI wrapper spec §6.6 allows ("a thin wrapper
// may expose run, resume, status"); the execution core itself has no CLI
// surface. Grounded on the teacher's example/cmd/assistant/main.go flag/log
// wiring style (flag.FlagSet per subcommand, goa.design/clue/log for
// structured output) rather than a generated Goa CLI, since edslctl has no
// design-time service definition to generate from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"goa.design/clue/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "resume":
		err = resumeCmd(ctx, os.Args[2:])
	case "status":
		err = statusCmd(ctx, os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "edslctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `edslctl runs a survey against a population and emits a result set.

Usage:
  edslctl run     -survey FILE -population FILE [-cache FILE] [-out FILE] [-concurrency N]
  edslctl resume  -survey FILE -population FILE -cache FILE [-out FILE]
  edslctl status  -statusfile FILE

"resume" is "run" with a pre-populated file cache: already-fingerprinted
turns are skipped deterministically (spec §4.9 "Resumability"); it is
provided as a separate subcommand only for operator clarity.`)
}

func commonFlags(fs *flag.FlagSet) (survey, population, cacheFile, out, statusFile *string, concurrency *int) {
	survey = fs.String("survey", "", "path to a survey JSON document (spec §6.1)")
	population = fs.String("population", "", "path to a population JSON document (agents/scenarios/models/iterations)")
	cacheFile = fs.String("cache", "", "path to a file-backed cache store (spec §4.4); empty disables persistence")
	out = fs.String("out", "", "path to write the resulting ResultSet JSON; defaults to stdout")
	statusFile = fs.String("statusfile", "", "path to append progress snapshots to, readable by 'edslctl status'")
	concurrency = fs.Int("concurrency", 0, "worker pool size (spec §4.9); zero selects the scheduler default")
	return
}
