package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// discoverFiles walks the tree rooted at rootPath and returns every regular
// file in scope. Hidden directories and files are skipped, as are explicitly
// excluded folders. Permission errors on directories are logged and skipped
// rather than failing the walk; unreadable files surface later as per-file
// extraction errors.
func (s *Service) discoverFiles(rootPath string, excludeFolders []string) ([]FileInfo, error) {
	var files []FileInfo

	excludeSet := make(map[string]struct{}, len(excludeFolders))
	for _, folder := range excludeFolders {
		excludeSet[folder] = struct{}{}
	}

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Error("could not walk through file or directory", "path", path, "err", err.Error())
			if errors.Is(err, os.ErrPermission) {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}

		// Skip hidden directories, but not the root itself
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && path != rootPath {
			return filepath.SkipDir
		}

		if info.IsDir() {
			if _, excluded := excludeSet[path]; excluded {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			Name:    info.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Created: fileBirthTime(path),
		})

		return nil
	})

	return files, err
}
