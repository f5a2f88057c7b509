package utils

import (
	"path/filepath"
	"strings"
)

// SourceExt is the file extension of rorth programs.
const SourceExt = ".rorth"

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactPaths returns the absolute .asm and executable paths for a source
// file. An empty outDir places them next to the source.
func ArtifactPaths(srcPath, outDir string) (asmPath string, exePath string, err error) {
	_, parentDir, err := GetPathInfo(srcPath)
	if err != nil {
		return "", "", err
	}
	if outDir != "" {
		if parentDir, err = filepath.Abs(outDir); err != nil {
			return "", "", err
		}
	}

	stem := filepath.Join(parentDir, BaseName(srcPath))
	return stem + ".asm", stem, nil
}

// FindSources lists the *.rorth files directly inside dir, sorted by name.
func FindSources(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*"+SourceExt))
}
