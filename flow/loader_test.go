package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	automation "github.com/goliatone/go-automation"
)

const sampleYAML = `
version: "1"
options:
  sweep_schedule: "@every 1m"
  default_pause_timeout: 10m
automations:
  - alias: porch_light
    description: turn the porch light on when the door opens
    triggers:
      - unit: type_is
        params:
          type: door.opened
    conditions:
      - unit: flag
        params:
          value: true
    variables:
      - unit: set
        params:
          key: who
          value: ana
    actions:
      - unit: mark
        alias: first
        params:
          name: "hello {{ .who }}"
    result:
      unit: calls
`

func TestParseDocumentYAML(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "1", doc.Version)
	assert.Equal(t, "@every 1m", doc.Options.SweepSchedule)
	assert.Equal(t, 10*time.Minute, doc.Options.DefaultPauseTimeout)
	require.Len(t, doc.Automations, 1)

	def := doc.Automations[0]
	assert.Equal(t, "porch_light", def.Alias)
	require.Len(t, def.Actions, 1)
	assert.Equal(t, "first", def.Actions[0].Label())
	assert.Equal(t, "hello {{ .who }}", def.Actions[0].Params.String("name"))
	require.NotNil(t, def.Result)
	assert.Equal(t, "calls", def.Result.Unit)
}

func TestParseDocumentJSON(t *testing.T) {
	data := `{"automations":[{"alias":"a","triggers":[{"unit":"always"}],"actions":[{"unit":"mark","params":{"name":"x"}}]}]}`
	doc, err := ParseDocument([]byte(data))
	require.NoError(t, err)
	require.Len(t, doc.Automations, 1)
	assert.Equal(t, "always", doc.Automations[0].Triggers[0].Unit)
}

func TestParseDocumentSchemaErrors(t *testing.T) {
	cases := map[string]string{
		"missing automations": `version: "1"`,
		"missing alias":       "automations:\n  - actions: []\n",
		"unknown step field":  "automations:\n  - alias: a\n    actions:\n      - unit: mark\n        with: {}\n",
		"empty unit":          "automations:\n  - alias: a\n    actions:\n      - unit: \"\"\n",
		"bad timeout":         "options:\n  default_pause_timeout: soon\nautomations: []\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument([]byte(data))
			require.Error(t, err)
			assert.Equal(t, ErrCodeDocumentInvalid, automation.ErrorCode(err))
		})
	}
}

func TestParseDocumentDuplicateAlias(t *testing.T) {
	_, err := ParseDocument([]byte("automations:\n  - alias: a\n  - alias: a\n"))
	require.Error(t, err)
	assert.Equal(t, automation.ErrCodeInvalidAutomation, automation.ErrorCode(err))
}

func TestLoadDocumentRegistersAutomations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)

	log := &callLog{}
	o := newTestOrchestrator(t, testUnits(t, log))
	automations, err := o.LoadDocument(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, automations, 1)

	_, ok := o.Automation("porch_light")
	require.True(t, ok)

	o.Publish(context.Background(), automation.NewEvent("door.opened", nil))
	assert.Equal(t, []string{"hello ana"}, log.list())

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ErrCodeDocumentInvalid, automation.ErrorCode(err))
}

func TestLoadDocumentUnknownUnit(t *testing.T) {
	doc, err := ParseDocument([]byte("automations:\n  - alias: a\n    conditions:\n      - unit: doesNotExist\n"))
	require.NoError(t, err)

	o := newTestOrchestrator(t, testUnits(t, &callLog{}))
	_, err = o.LoadDocument(context.Background(), doc)
	assert.True(t, automation.IsUnitNotFound(err))
	assert.Contains(t, err.Error(), "doesNotExist")
	assert.Empty(t, o.Automations())
}
