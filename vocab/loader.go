package vocab

import "github.com/agentstation/gguftok/gguf"

// Loader abstracts how a vocabulary's backing GGUF metadata is obtained,
// grounded on the teacher's VocabularyDataLoader indirection (llama3/data.go):
// production code loads from a file path, tests can substitute an in-memory
// buffer without touching the filesystem.
type Loader interface {
	Load(path string) (*gguf.Metadata, error)
}

// FileLoader is the default Loader, reading a GGUF file from disk.
type FileLoader struct{}

// Load reads and parses the GGUF file at path.
func (FileLoader) Load(path string) (*gguf.Metadata, error) {
	return gguf.Load(path)
}
