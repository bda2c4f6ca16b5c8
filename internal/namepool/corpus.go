package namepool

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// corpusFile is the on-disk shape of a name corpus:
//
//	names:
//	  - name: Emma
//	    platform: roblox
//	  - name: Lucas
type corpusFile struct {
	Names []Entry `yaml:"names"`
}

// ImportCorpus reads a YAML corpus file and bulk-adds its entries.
func (p *Pool) ImportCorpus(ctx context.Context, path string) (*BulkReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("namepool: read corpus: %w", err)
	}

	var corpus corpusFile
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("namepool: parse corpus: %w", err)
	}

	return p.BulkAdd(ctx, corpus.Names)
}
