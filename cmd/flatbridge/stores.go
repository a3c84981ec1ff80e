package main

import (
	"fmt"
	"os"

	"github.com/cryptoe/flatbridge"
	"github.com/cryptoe/flatbridge/backend/file"
	_ "github.com/cryptoe/flatbridge/backend/gcs"
	_ "github.com/cryptoe/flatbridge/backend/memory"
	_ "github.com/cryptoe/flatbridge/backend/s3"
	_ "github.com/cryptoe/flatbridge/backend/sftp"
	"github.com/cryptoe/flatbridge/internal/config"
	"github.com/cryptoe/flatbridge/internal/index"
	"github.com/cryptoe/flatbridge/internal/pipeline"
)

// stores holds the backends of a run.
type stores struct {
	input  flatbridge.Backend
	output flatbridge.Backend

	// sink receives artifacts. It is output in store mode and a local
	// directory in local mode.
	sink       flatbridge.Backend
	sinkPrefix string

	mode pipeline.Mode
}

func openStores(c *config.Config, withInput bool) (*stores, error) {
	mode, err := c.Mode()
	if err != nil {
		return nil, err
	}
	s := &stores{mode: mode}

	if withInput {
		if s.input, err = pipeline.OpenStore(c.Input.Backend, c.Input.BackendConfig()); err != nil {
			return nil, fmt.Errorf("input: %w", err)
		}
	}
	if s.output, err = pipeline.OpenStore(c.Output.Backend, c.Output.BackendConfig()); err != nil {
		s.close()
		return nil, fmt.Errorf("output: %w", err)
	}

	switch mode {
	case pipeline.ModeStore:
		s.sink = s.output
		s.sinkPrefix = c.Output.Prefix
	default:
		if err := os.MkdirAll(c.Pipeline.LocalDir, 0755); err != nil {
			s.close()
			return nil, fmt.Errorf("creating local dir: %w", err)
		}
		fc := file.DefaultConfig()
		fc.Root = c.Pipeline.LocalDir
		s.sink = file.New(fc)
	}
	return s, nil
}

// indexSources lists where published dates are found. In local mode the
// local directory counts as published too.
func (s *stores) indexSources(c *config.Config) []index.Source {
	sources := []index.Source{{Backend: s.output, Prefix: c.Output.Prefix, Name: "output"}}
	if s.mode == pipeline.ModeLocal {
		sources = append(sources, index.Source{Backend: s.sink, Name: "local"})
	}
	return sources
}

func (s *stores) close() {
	if s.input != nil {
		closeStore("input", s.input)
	}
	if s.sink != nil && s.sink != s.output {
		closeStore("local", s.sink)
	}
	if s.output != nil {
		closeStore("output", s.output)
	}
}
