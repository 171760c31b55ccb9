package prompts

import (
	_ "embed"
)

//go:embed enhance.txt
var EnhancePrompt string
