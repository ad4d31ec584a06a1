package index

import (
	"sync"

	"github.com/agentrun/agentrun/internal/rag/parser/markdown"
	"github.com/agentrun/agentrun/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
