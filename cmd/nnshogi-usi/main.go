package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/j6k1/nnshogi/internal/hash"
	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/storage"
	"github.com/j6k1/nnshogi/internal/train"
	"github.com/j6k1/nnshogi/internal/usi"
)

// Default weight file names for the two ensemble heads.
const (
	defaultWeightsA = "nn.a.weights"
	defaultWeightsB = "nn.b.weights"
)

var (
	dataDir    = flag.String("dir", "", "data directory (default: platform data dir)")
	weightsA   = flag.String("nna", defaultWeightsA, "network A weight file name")
	weightsB   = flag.String("nnb", defaultWeightsB, "network B weight file name")
	learnDir   = flag.String("learn", "", "train from the packed records in this directory and exit")
	shakeShake = flag.Bool("shake", true, "enable the shake-shake evaluation mix")
	noStore    = flag.Bool("nostore", false, "disable the persistent game archive")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)

	dir := *dataDir
	if dir == "" {
		var err error
		dir, err = storage.WeightsDir()
		if err != nil {
			log.Printf("[Main] cannot resolve data directory: %v", err)
			os.Exit(1)
		}
	}
	pathA := filepath.Join(dir, *weightsA)
	pathB := filepath.Join(dir, *weightsB)

	eval := nn.NewEvaluator(*shakeShake)
	if err := eval.LoadOrInit(pathA, pathB); err != nil {
		log.Printf("[Main] cannot load weights: %v", err)
		os.Exit(1)
	}

	if *learnDir != "" {
		runTraining(eval, dir, pathA, pathB)
		return
	}

	seeds := hash.NewSeeds()

	var store *storage.Store
	if !*noStore {
		var err error
		store, err = storage.Open()
		if err != nil {
			log.Printf("[Main] game archive unavailable: %v", err)
		} else {
			defer store.Close()
		}
	}

	adapter := usi.NewAdapter(seeds, eval, pathA, pathB, store)
	protocol := usi.New(adapter)
	protocol.Run(os.Stdin)
}

func runTraining(eval *nn.Evaluator, dir, pathA, pathB string) {
	eval.ShakeShake = false
	trainer := train.NewTrainer(eval, *learnDir, filepath.Join(dir, "checkpoint.txt"), pathA, pathB)
	if err := trainer.Run(); err != nil {
		log.Printf("[Train] training failed: %v", err)
		os.Exit(1)
	}
	log.Printf("[Train] training complete")
}
