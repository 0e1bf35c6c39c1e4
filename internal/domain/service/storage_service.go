package service

// StorageService locates bare repositories on disk
type StorageService interface {
	// GetBasePath returns the base storage path
	GetBasePath() string

	// GetRepoPath returns the conventional location <base>/<owner>/<repo>.git
	GetRepoPath(owner, repoName string) string

	// Resolve turns a stored git path into an absolute path. Relative paths
	// are resolved against the base path.
	Resolve(path string) string

	// Exists checks if a path exists in the storage
	Exists(path string) (bool, error)

	// IsDir checks if the path is a directory
	IsDir(path string) (bool, error)
}
