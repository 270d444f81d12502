package nn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Weight file format constants.
const (
	weightsMagic   = 0x4E4E5347 // "NNSG"
	weightsVersion = 1
)

type weightsHeader struct {
	Magic   uint32
	Version uint32
	Input   uint32
	Hidden  uint32
	L2      uint32
}

// SaveWeights writes the network to path atomically: the file is written to
// <path>.tmp, flushed, and renamed over the destination.
func (n *Network) SaveWeights(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}

	w := bufio.NewWriter(f)
	header := weightsHeader{
		Magic:   weightsMagic,
		Version: weightsVersion,
		Input:   InputSize,
		Hidden:  HiddenSize,
		L2:      L2Size,
	}
	err = binary.Write(w, binary.LittleEndian, &header)
	for i := 0; err == nil && i < InputSize; i++ {
		err = binary.Write(w, binary.LittleEndian, n.W1[i])
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, n.B1)
	}
	for i := 0; err == nil && i < HiddenSize; i++ {
		err = binary.Write(w, binary.LittleEndian, n.W2[i])
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, n.B2)
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, n.W3)
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, n.B3)
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write weights: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace weights file: %w", err)
	}
	return nil
}

// LoadWeights reads the network from a file produced by SaveWeights.
func (n *Network) LoadWeights(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header weightsHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if header.Magic != weightsMagic {
		return fmt.Errorf("invalid magic number: expected %x, got %x", weightsMagic, header.Magic)
	}
	if header.Version != weightsVersion {
		return fmt.Errorf("unsupported version: %d", header.Version)
	}
	if header.Input != InputSize || header.Hidden != HiddenSize || header.L2 != L2Size {
		return fmt.Errorf("dimension mismatch: %dx%dx%d", header.Input, header.Hidden, header.L2)
	}

	for i := 0; i < InputSize; i++ {
		if err := binary.Read(r, binary.LittleEndian, n.W1[i]); err != nil {
			return fmt.Errorf("failed to read layer 1 weights at %d: %w", i, err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, n.B1); err != nil {
		return fmt.Errorf("failed to read layer 1 bias: %w", err)
	}
	for i := 0; i < HiddenSize; i++ {
		if err := binary.Read(r, binary.LittleEndian, n.W2[i]); err != nil {
			return fmt.Errorf("failed to read layer 2 weights at %d: %w", i, err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, n.B2); err != nil {
		return fmt.Errorf("failed to read layer 2 bias: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, n.W3); err != nil {
		return fmt.Errorf("failed to read output weights: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n.B3); err != nil {
		return fmt.Errorf("failed to read output bias: %w", err)
	}
	return nil
}

// LoadOrInit loads both heads from the given files, initializing any head
// whose file does not exist yet.
func (e *Evaluator) LoadOrInit(pathA, pathB string) error {
	if err := loadOrInitNetwork(e.A, pathA); err != nil {
		return err
	}
	return loadOrInitNetwork(e.B, pathB)
}

// Save persists both heads.
func (e *Evaluator) Save(pathA, pathB string) error {
	if err := e.A.SaveWeights(pathA); err != nil {
		return err
	}
	return e.B.SaveWeights(pathB)
}

func loadOrInitNetwork(n *Network, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // keep the random initialization
	}
	return n.LoadWeights(path)
}
