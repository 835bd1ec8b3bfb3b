package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd_RegistersAllSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "query")
	assert.Contains(t, names, "cache")
	assert.Contains(t, names, "update-indices")
}

func TestCacheCmd_RegistersInfoSubcommand(t *testing.T) {
	root := NewRootCmd()

	cacheCmd, _, err := root.Find([]string{"cache", "info"})
	assert.NoError(t, err)
	assert.Equal(t, "info", cacheCmd.Name())
}

func TestQueryCmd_RequiresExactlyOneArg(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"query"})
	err := root.Execute()
	assert.Error(t, err)
}
