package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
)

// SymbolOverride is one entry in the symbols YAML file. Zero fields keep the
// paper broker defaults.
type SymbolOverride struct {
	Symbol       string  `yaml:"symbol"`
	Bid          float64 `yaml:"bid"`
	Ask          float64 `yaml:"ask"`
	Point        float64 `yaml:"point"`
	Digits       int     `yaml:"digits"`
	ContractSize float64 `yaml:"contract_size"`
	VolumeMin    float64 `yaml:"volume_min"`
	VolumeMax    float64 `yaml:"volume_max"`
	VolumeStep   float64 `yaml:"volume_step"`
}

type symbolsFile struct {
	Symbols []SymbolOverride `yaml:"symbols"`
}

// LoadSymbolSpecs reads per-symbol instrument specs from a YAML file.
// Returns nil (no error) when path is empty.
func LoadSymbolSpecs(path string) (map[string]broker.SymbolSpec, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var f symbolsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse symbols file %s: %w", path, err)
	}

	specs := make(map[string]broker.SymbolSpec, len(f.Symbols))
	for i, s := range f.Symbols {
		if s.Symbol == "" {
			return nil, fmt.Errorf("symbols file %s: entry %d missing symbol", path, i)
		}
		spec := broker.SymbolSpec{
			Symbol:       s.Symbol,
			Bid:          s.Bid,
			Ask:          s.Ask,
			Point:        s.Point,
			Digits:       s.Digits,
			ContractSize: s.ContractSize,
			VolumeMin:    s.VolumeMin,
			VolumeMax:    s.VolumeMax,
			VolumeStep:   s.VolumeStep,
		}
		if spec.ContractSize == 0 {
			spec.ContractSize = 100000
		}
		if spec.VolumeMin == 0 {
			spec.VolumeMin = 0.01
		}
		if spec.VolumeMax == 0 {
			spec.VolumeMax = 100
		}
		if spec.VolumeStep == 0 {
			spec.VolumeStep = 0.01
		}
		specs[s.Symbol] = spec
	}
	return specs, nil
}
