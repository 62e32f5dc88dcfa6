package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedFilesAreOrdered(t *testing.T) {
	names, err := embeddedNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
	for i := 1; i < len(names); i++ {
		require.Less(t, names[i-1], names[i])
	}
}

func TestEmbeddedNamesOnlyListsSQL(t *testing.T) {
	names, err := embeddedNames()
	require.NoError(t, err)
	for _, n := range names {
		require.True(t, strings.HasSuffix(n, ".sql"), n)
	}
}
