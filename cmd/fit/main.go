package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/config"
	"github.com/justinmeimar/performative/go-sim/internal/pipeline"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to a JSON config (defaults apply for missing keys)")
	seed := flag.Uint64("seed", 0, "random seed (env PERF_SEED)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("environment: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.RandomSeed = *seed
		}
	})

	rep, err := pipeline.Static(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if rep.Fallback {
		log.Printf("warning: optimizer did not converge (%s); reporting initial theta", rep.Best.Status)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Fatalf("marshal json: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	printReport(rep)
}

// #endregion main

// #region output
func printReport(rep pipeline.StaticReport) {
	fmt.Printf("Points:          %d\n", rep.Points)
	fmt.Printf("Initial theta:   %.4f  loss %.4f\n", rep.InitialTheta, rep.InitialLoss)
	fmt.Printf("Perturbed:       %.4f  loss %.4f\n", rep.Perturbed[0].Theta, rep.Perturbed[0].Loss)
	fmt.Printf("                 %.4f  loss %.4f\n", rep.Perturbed[1].Theta, rep.Perturbed[1].Loss)
	fmt.Printf("Best theta:      %.4f  loss %.4f  (%d iterations, %s)\n",
		rep.Best.Theta, rep.Best.Loss, rep.Best.Iterations, rep.Best.Status)
	fmt.Printf("Accuracy:        %.4f\n", rep.Accuracy)
	fmt.Printf("\nLabel-1 shift %.4f: loss %.4f (delta %+.4f)\n", rep.ModifyAmount, rep.ModifiedLoss, rep.LossDelta)

	if len(rep.Variants) == 0 {
		return
	}
	fmt.Printf("\n%-14s  %8s  %8s\n", "Variant", "Mean", "Loss")
	fmt.Printf("%-14s+-%8s+-%8s\n", "--------------", "--------", "--------")
	for _, v := range rep.Variants {
		fmt.Printf("%-14s  %8.4f  %8.4f\n", v.Group, v.Mean, v.Loss)
	}
}

// #endregion output
