//go:build tools

package whisper

import (
	_ "go.uber.org/mock/mockgen"
)
