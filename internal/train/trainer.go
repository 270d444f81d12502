package train

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/j6k1/nnshogi/internal/nn"
	"github.com/j6k1/nnshogi/internal/shogi"
	"github.com/j6k1/nnshogi/internal/storage"
)

// Trainer feeds a directory of packed training files to the evaluator,
// resuming from the checkpoint and saving weights plus checkpoint after
// every fully consumed file.
type Trainer struct {
	Eval           *nn.Evaluator
	Dir            string
	CheckpointPath string
	WeightsA       string
	WeightsB       string
	BatchSize      int
	Opts           nn.TrainOptions
}

// NewTrainer creates a trainer with the default batch settings.
func NewTrainer(eval *nn.Evaluator, dir, checkpointPath, weightsA, weightsB string) *Trainer {
	return &Trainer{
		Eval:           eval,
		Dir:            dir,
		CheckpointPath: checkpointPath,
		WeightsA:       weightsA,
		WeightsB:       weightsB,
		BatchSize:      256,
		Opts:           nn.DefaultTrainOptions(),
	}
}

// Run consumes every .psv (40-byte packed) and .hcpe (38-byte) file in the
// directory in name order.
func (t *Trainer) Run() error {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".psv") || strings.HasSuffix(name, ".hcpe") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	cp, err := storage.ReadCheckpoint(t.CheckpointPath)
	if err != nil && err != storage.ErrNoCheckpoint {
		return err
	}

	resumed := cp.Filename == ""
	for _, name := range files {
		startItem := 0
		if !resumed {
			if name != cp.Filename {
				continue
			}
			resumed = true
			if cp.Item == 0 {
				// The file was fully consumed.
				continue
			}
			startItem = cp.Item
		}

		if err := t.trainFile(name, startItem); err != nil {
			return fmt.Errorf("training on %s: %w", name, err)
		}

		if err := t.Eval.Save(t.WeightsA, t.WeightsB); err != nil {
			return err
		}
		if err := storage.WriteCheckpoint(t.CheckpointPath, storage.Checkpoint{Filename: name}); err != nil {
			return err
		}
		log.Printf("[Train] finished %s", name)
	}
	return nil
}

func (t *Trainer) trainFile(name string, startItem int) error {
	f, err := os.Open(filepath.Join(t.Dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	recordSize := PackedRecordSize
	decode := DecodePacked
	if strings.HasSuffix(name, ".hcpe") {
		recordSize = HCPERecordSize
		decode = DecodeHCPE
	}

	records, err := ReadAll(f, recordSize, decode)
	if err != nil {
		return err
	}
	if startItem > len(records) {
		startItem = len(records)
	}
	records = records[startItem:]

	batch := t.BatchSize
	if batch <= 0 {
		batch = 256
	}
	for lo := 0; lo < len(records); lo += batch {
		hi := lo + batch
		if hi > len(records) {
			hi = len(records)
		}
		samples := Samples(records[lo:hi])
		if _, err := t.Eval.A.TrainBatch(samples, t.Opts); err != nil {
			return err
		}
		if _, err := t.Eval.B.TrainBatch(samples, t.Opts); err != nil {
			return err
		}
		if err := storage.WriteCheckpoint(t.CheckpointPath, storage.Checkpoint{
			Filename: name, Item: startItem + hi,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Samples expands records into training samples for both the mover and the
// opponent perspective of each position.
func Samples(records []Record) []nn.Sample {
	samples := make([]nn.Sample, 0, 2*len(records))
	for i := range records {
		rec := &records[i]
		side := rec.Pos.Side
		samples = append(samples,
			nn.Sample{Active: nn.ActiveFeatures(side, true, &rec.Pos), Target: outcomeTarget(rec.Outcome, side)},
			nn.Sample{Active: nn.ActiveFeatures(side.Other(), false, &rec.Pos), Target: outcomeTarget(rec.Outcome, side.Other())},
		)
	}
	return samples
}

func outcomeTarget(o GameOutcome, c shogi.Color) float32 {
	switch o {
	case OutcomeBlackWin:
		if c == shogi.Black {
			return 1
		}
		return 0
	case OutcomeWhiteWin:
		if c == shogi.White {
			return 1
		}
		return 0
	default:
		return 0.5
	}
}
