package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "rdrealty-lms", root.Use)

	for _, name := range []string{"server", "migrate", "depreciate"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, depreciateCmd.Flags().Lookup("as-of"))
	assert.NotNil(t, serverCmd.Flags().Lookup("port"))
}

func TestDepreciateCmd_RejectsBadDate(t *testing.T) {
	root := GetRootCmd()
	root.SetArgs([]string{"depreciate", "--as-of", "16/10/2026"})
	t.Cleanup(func() { root.SetArgs(nil) })

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as-of must be YYYY-MM-DD")
}
