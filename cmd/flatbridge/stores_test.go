package main

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoe/flatbridge/internal/config"
	"github.com/cryptoe/flatbridge/internal/pipeline"
)

func memoryConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	return &config.Config{
		Input:  config.StoreConfig{Backend: "memory", Prefix: "in", Suffix: ".csv.gz"},
		Output: config.StoreConfig{Backend: "memory", Prefix: "trades", Suffix: ".parquet"},
		Pipeline: config.PipelineConfig{
			Mode:     mode,
			LocalDir: filepath.Join(t.TempDir(), "local_parquet_files"),
			Workers:  1,
		},
	}
}

func TestOpenStoresLocal(t *testing.T) {
	c := memoryConfig(t, "local")
	s, err := openStores(c, true)
	require.NoError(t, err)
	defer s.close()

	assert.Equal(t, pipeline.ModeLocal, s.mode)
	assert.NotNil(t, s.input)
	assert.NotSame(t, s.output, s.sink)
	assert.Empty(t, s.sinkPrefix)
	assert.DirExists(t, c.Pipeline.LocalDir)

	sources := s.indexSources(c)
	require.Len(t, sources, 2)
	assert.Equal(t, "trades", sources[0].Prefix)
	assert.Equal(t, "local", sources[1].Name)
}

func TestOpenStoresStore(t *testing.T) {
	c := memoryConfig(t, "store")
	s, err := openStores(c, false)
	require.NoError(t, err)
	defer s.close()

	assert.Nil(t, s.input)
	assert.Equal(t, s.output, s.sink)
	assert.Equal(t, "trades", s.sinkPrefix)
	assert.Len(t, s.indexSources(c), 1)
	assert.NoDirExists(t, c.Pipeline.LocalDir)
}

func TestOpenStoresUnknownBackend(t *testing.T) {
	c := memoryConfig(t, "store")
	c.Output.Backend = "ftp"
	_, err := openStores(c, false)
	assert.ErrorIs(t, err, pipeline.ErrStoreInit)
}

func TestReadFailures(t *testing.T) {
	report := `{"seq":0,"path":"in/2024-03-01.csv.gz","date":"2024-03-01","status":"published","rows":1}
{"seq":1,"path":"in/2024-03-02.csv.gz","date":"2024-03-02","status":"failed","stage":"parse","error":"bad row"}
{"seq":2,"path":"in/2024-02-29.csv.gz","date":"2024-02-29","status":"skipped","reason":"processed"}
`
	failed, err := readFailures(io.NopCloser(strings.NewReader(report)))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "2024-03-02", failed[0].Date)
	assert.Equal(t, "parse", failed[0].Stage)
	assert.Equal(t, "bad row", failed[0].Error)

	_, err = readFailures(io.NopCloser(strings.NewReader("{not json\n")))
	assert.Error(t, err)
}
