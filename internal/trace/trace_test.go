package trace

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/loom"
)

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestGolden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			res, err := Run(s, loom.DefaultConfig(), quietLogger())
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, Format(&buf, res))
			g.Assert(t, name, buf.Bytes())
		})
	}
}

func TestParseScenario(t *testing.T) {
	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := ParseScenario([]byte("name: x\nsteps:\n  - render: {tag: div}\n    wat: 1\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode scenario")
	})

	t.Run("rejects a step doing nothing", func(t *testing.T) {
		_, err := ParseScenario([]byte("name: x\nsteps:\n  - {}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 1: nothing to do")
	})

	t.Run("rejects text on an element", func(t *testing.T) {
		_, err := ParseScenario([]byte("name: x\nsteps:\n  - render: {tag: div, text: hi}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `element "div" has text`)
	})

	t.Run("builds keyed elements", func(t *testing.T) {
		s, err := ParseScenario([]byte("name: x\nsteps:\n  - render: {tag: li, key: k, props: {id: 1}}\n"))
		require.NoError(t, err)

		el := s.Steps[0].Render.Element()
		assert.Equal(t, "k", el.Key)
		assert.Equal(t, loom.Props{"id": 1}, el.Props)
	})
}

func TestRunConcurrentOverride(t *testing.T) {
	s, err := ParseScenario([]byte("name: x\nsteps:\n  - render: {text: hi}\n  - unmount: true\n"))
	require.NoError(t, err)

	cfg := loom.DefaultConfig()
	cfg.ConcurrentMode = true
	res, err := Run(s, cfg, quietLogger())
	require.NoError(t, err)

	assert.True(t, res.Concurrent)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "hi", res.Steps[0].HTML)
	assert.Equal(t, "unmount", res.Steps[1].Kind)
	assert.Empty(t, res.Steps[1].HTML)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestFormat(t *testing.T) {
	res := &Result{
		Name:    "tiny",
		Steps:   []StepResult{{Kind: "render", Ops: []string{"create p2"}, HTML: "<p></p>"}},
		Commits: 1,
	}

	t.Run("writes every step", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Format(&buf, res))
		assert.Equal(t, "scenario: tiny\nmode: legacy\n\nstep 1: render\n  create p2\n  html: <p></p>\n\ncommits: 1\n", buf.String())
	})

	t.Run("reports write errors", func(t *testing.T) {
		err := Format(failingWriter{}, res)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed pipe")
	})
}
