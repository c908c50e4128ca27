package ports

// FileSystem abstracts file system operations.
type FileSystem interface {
	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file. Implementations write to a
	// temporary sibling and rename it so readers never observe a
	// partially written file.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)

	// IsDir reports whether path names a directory.
	IsDir(path string) (bool, error)

	// ListImages returns the supported input files under root in lexical
	// order. Subdirectories are walked only when recursive is true.
	ListImages(root string, recursive bool) ([]string, error)
}
