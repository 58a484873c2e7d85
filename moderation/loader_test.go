package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"parley/errors"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	loader := NewCensoredLoader(testDictionaries)

	// When loading every embedded dictionary
	data, err := loader.LoadAll("testdata/censored")
	req.NoError(err)

	// Then one language per file, words deduplicated across files
	req.ElementsMatch([]string{"en", "fr"}, data.Languages)
	req.ElementsMatch([]string{"badger", "snake", "mushroom", "blaireau"}, data.Words)
}

func TestCensoredLoader_EmptyDirectory(t *testing.T) {
	req := require.New(t)
	loader := NewCensoredLoader(testDictionaries)

	_, err := loader.LoadAll("testdata/empty")
	req.ErrorIs(err, errors.ErrEmptyWords)
}
