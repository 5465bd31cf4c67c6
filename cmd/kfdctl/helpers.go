package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/barnettlynn/kfdctl/pkg/kfd"
	"gopkg.in/yaml.v3"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func usDuration(us int) time.Duration { return time.Duration(us) * time.Microsecond }

// keyloadBatch is the on-disk shape of a keyload-many batch file: a flat
// list of keys, each loaded in its own session in file order.
type keyloadBatch struct {
	Keys []struct {
		Keyset    uint16 `yaml:"keyset"`
		SLN       uint16 `yaml:"sln"`
		KeyID     uint16 `yaml:"key_id"`
		Algorithm uint8  `yaml:"algorithm"`
		Key       string `yaml:"key"` // hex encoded
	} `yaml:"keys"`
}

func loadKeyloadBatch(path string) ([]kfd.KeyItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	var batch keyloadBatch
	if err := yaml.Unmarshal(content, &batch); err != nil {
		return nil, fmt.Errorf("parse batch yaml: %w", err)
	}

	items := make([]kfd.KeyItem, 0, len(batch.Keys))
	for i, k := range batch.Keys {
		key, err := hexDecode(k.Key)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: invalid key hex: %w", i, err)
		}
		items = append(items, kfd.KeyItem{
			KeysetID:    k.Keyset,
			SLN:         k.SLN,
			KeyID:       k.KeyID,
			AlgorithmID: kfd.AlgorithmID(k.Algorithm),
			Key:         key,
		})
	}
	return items, nil
}
