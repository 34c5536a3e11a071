/*
ProfileNJ resolves multifurcating nodes in gene trees by picking, for each
polytomy, a binary refinement minimizing the duplication/loss reconciliation
cost against a species tree, breaking cost ties with a distance-based
neighbor joining reference tree.

usage: profilenj [ -f <format> | -d <file> | -s <file> | -p <prefix> | -m <metric> | -c <n> | -D <w> | -L <w> | -sep <s> | -n <n> | -h | -v ] <command> <species_tree> <gene_trees>

commands:

	resolve		resolves gene tree polytomies against the species tree
	score		computes the duplication/loss cost of each gene tree

positional arguments:

	<species_tree>	species newick tree
	<gene_trees>	gene tree newick file

flags:

	-D weight
	  	duplication event weight (default 1)
	-L weight
	  	loss event weight (default 1)
	-c int
	  	max resolutions examined per polytomy (default 10000)
	-d file
	  	distance matrix csv file for the tie breaker
	-f format
	  	gene tree format [ newick | nexus ] (default "newick")
	-h	prints this message and exits
	-m metric
	  	tie-break metric [ bipartition | quartet ] (default "bipartition")
	-n int
	  	number of parallel processes
	-p prefix
	  	write a reconciliation cost lineplot to <prefix>.png
	-s file
	  	write per-gene resolution stats csv to file
	-sep string
	  	separator between species name and gene id in leaf labels
	-v	prints version number and exits

examples:

	  resolve command example:
		profilenj -d dist.csv resolve species.nwk gene-trees.nwk > resolved.nwk 2> log.txt

	  score command example:
		profilenj score species.nwk gene-trees.nwk > scores.csv 2> log.txt
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/UdeM-LBIT/profileNJ/internal/nj"
	pr "github.com/UdeM-LBIT/profileNJ/internal/prep"
	rc "github.com/UdeM-LBIT/profileNJ/internal/recon"
	"github.com/UdeM-LBIT/profileNJ/internal/resolve"
)

const (
	Version    = "v1.0.0"
	ErrMessage = "ProfileNJ encountered an error ::"

	Resolve Command = iota
	Score
)

type Command int

var parseCommand = map[string]Command{
	"resolve": Resolve,
	"score":   Score,
}

type args struct {
	command      Command         // resolve or score
	gtFormat     pr.Format       // gene tree file format
	treeFile     string          // species tree file
	geneTreeFile string          // gene trees
	distFile     string          // distance matrix csv (optional)
	statsFile    string          // resolution stats csv output (optional)
	plotPrefix   string          // cost lineplot output prefix (optional)
	opts         resolve.Options // resolver options
}

func setNProcs(nprocs int) int {
	maxProcs := runtime.GOMAXPROCS(0)
	switch {
	case nprocs > maxProcs:
		log.Printf("%d is greater than available processes (%d); limit set to %d\n", nprocs, maxProcs, maxProcs)
		return maxProcs
	case nprocs <= 0:
		log.Printf("number of processes not set; defaulting to %d processes\n", maxProcs)
		return maxProcs
	default:
		return nprocs
	}
}

func parseArgs() args {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"usage: profilenj [ -f <format> | -d <file> | -s <file> | -p <prefix> | -m <metric> | -c <n> | -D <w> | -L <w> | -sep <s> | -n <n> | -h | -v ] <command> <species_tree> <gene_trees>\n",
			"\n",
			"commands:\n\n",
			"  resolve\tresolves gene tree polytomies against the species tree\n",
			"  score\t\tcomputes the duplication/loss cost of each gene tree\n",
			"\n",
			"positional arguments:\n\n",
			"  <species_tree>\tspecies newick tree\n",
			"  <gene_trees>\tgene tree newick file\n",
			"\n",
			"flags:\n\n",
		)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr,
			"\n",
			"examples:\n\n",
			"  resolve command example:\n",
			"\tprofilenj -d dist.csv resolve species.nwk gene-trees.nwk > resolved.nwk 2> log.txt\n\n",
			"  score command example:\n",
			"\tprofilenj score species.nwk gene-trees.nwk > scores.csv 2> log.txt\n",
		)
	}
	format := pr.Newick
	flag.Var(&format, "f", "gene tree `format` [ newick | nexus ] (default \"newick\")")
	metric := nj.BipartitionAgreement
	flag.Var(&metric, "m", "tie-break `metric` [ bipartition | quartet ] (default \"bipartition\")")
	distFile := flag.String("d", "", "distance matrix csv `file` for the tie breaker")
	statsFile := flag.String("s", "", "write per-gene resolution stats csv to `file`")
	plotPrefix := flag.String("p", "", "write a reconciliation cost lineplot to `prefix`.png")
	ceiling := flag.Int("c", resolve.DefaultCeiling, "max resolutions examined per polytomy")
	dupWeight := flag.Float64("D", 1, "duplication event `weight`")
	lossWeight := flag.Float64("L", 1, "loss event `weight`")
	sep := flag.String("sep", "", "separator between species name and gene id in leaf labels")
	help := flag.Bool("h", false, "prints this message and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	nprocs := flag.Int("n", 0, "number of parallel processes")
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("ProfileNJ version %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() != 3 {
		parserError("three positional arguments required: <command> <species_tree> <gene_tree_file>")
	}
	cmd, ok := parseCommand[flag.Arg(0)]
	if !ok {
		parserError(fmt.Sprintf("\"%s\" is not a valid command: either \"resolve\" or \"score\" required", flag.Arg(0)))
	}
	if *ceiling < 1 {
		parserError(fmt.Sprintf("candidate ceiling must be positive, got %d", *ceiling))
	}
	if *dupWeight < 0 || *lossWeight < 0 {
		parserError("event weights cannot be negative")
	}
	return args{
		command:      cmd,
		gtFormat:     format,
		treeFile:     flag.Arg(1),
		geneTreeFile: flag.Arg(2),
		distFile:     *distFile,
		statsFile:    *statsFile,
		plotPrefix:   *plotPrefix,
		opts: resolve.Options{
			Weights:     rc.Weights{Dup: *dupWeight, Loss: *lossWeight},
			Ceiling:     *ceiling,
			Metric:      metric,
			NProcs:      setNProcs(*nprocs),
			SpeciesName: rc.PrefixSpeciesName(*sep),
		},
	}
}

// prints message, usage, and exits (statis code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message)
	flag.Usage()
	os.Exit(1)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("ProfileNJ version %s", Version)
	args := parseArgs()
	tre, geneTrees, err := pr.ReadInputFiles(args.treeFile, args.geneTreeFile, args.gtFormat)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	td, gts, err := pr.Preprocess(tre, geneTrees.Trees)
	if err != nil {
		log.Fatalf("%s %s\n", ErrMessage, err)
	}
	switch args.command {
	case Resolve:
		log.Println("running resolve...")
		if args.distFile != "" {
			dm, err := pr.ReadDistanceMatrix(args.distFile)
			if err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
			args.opts.DistMatrix = dm
		}
		results, errs := resolve.ResolveAll(gts, td, args.opts)
		failed := 0
		for i, res := range results {
			if res == nil {
				failed++
				log.Printf("gene tree %s failed: %s\n", geneTrees.Names[i], errs[i])
				continue
			}
			fmt.Println(res.Tree.Newick())
		}
		if failed == len(results) {
			log.Fatalf("%s all %d gene trees failed\n", ErrMessage, failed)
		}
		if args.statsFile != "" {
			file, err := os.Create(args.statsFile)
			if err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
			if err := pr.WriteResolveStatsToCSV(results, geneTrees.Names, file); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
			if err := file.Close(); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
		}
		if args.plotPrefix != "" {
			costs := make([]float64, 0, len(results))
			for _, res := range results {
				if res != nil {
					costs = append(costs, res.Cost.Weighted(args.opts.Weights))
				}
			}
			if err := pr.WriteCostsLineplot(costs, args.plotPrefix); err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
		}
	case Score:
		log.Println("running score...")
		costs := make([]rc.Cost, len(gts))
		for i, gt := range gts {
			m, err := rc.MapGeneTree(gt, td, args.opts.SpeciesName)
			if err != nil {
				log.Fatalf("%s gene tree %s: %s\n", ErrMessage, geneTrees.Names[i], err)
			}
			costs[i] = rc.TreeCost(gt, td, m)
		}
		if err := pr.WriteScoresToCSV(costs, geneTrees.Names, args.opts.Weights, os.Stdout); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
	default:
		panic(fmt.Sprintf("invalid command (%d)", args.command))
	}
}
