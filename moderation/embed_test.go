package moderation

import "embed"

//go:embed testdata
var testDictionaries embed.FS
