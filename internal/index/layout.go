package index

import (
	"path"
	"strings"

	"github.com/jward/maapipe/internal/parser"
)

// DefaultsFile holds per-algorithm default properties. Its refs are checked
// but its keys are not tasks.
const DefaultsFile = "default_pipeline.json"

// Layout describes where a resource root keeps its pipeline and image files.
type Layout struct {
	PipelineDirs  []string
	PipelineFiles []string
	ImageDirs     []string
}

// LayoutFor returns the directory layout of a dialect.
func LayoutFor(d parser.Dialect) Layout {
	if d == parser.DialectLegacy {
		return Layout{
			PipelineDirs:  []string{"tasks"},
			PipelineFiles: []string{"tasks.json"},
			ImageDirs:     []string{"template"},
		}
	}
	return Layout{
		PipelineDirs: []string{"pipeline"},
		ImageDirs:    []string{"image"},
	}
}

type fileKind uint8

const (
	fileNone fileKind = iota
	filePipeline
	fileDefaults
	fileImage
)

// classify decides what rel is. image holds the path relative to its image
// directory for image files.
func (lay Layout) classify(rel string) (kind fileKind, image string) {
	if rel == DefaultsFile {
		return fileDefaults, ""
	}
	for _, f := range lay.PipelineFiles {
		if rel == f {
			return filePipeline, ""
		}
	}
	ext := strings.ToLower(path.Ext(rel))
	for _, dir := range lay.PipelineDirs {
		if strings.HasPrefix(rel, dir+"/") && (ext == ".json" || ext == ".jsonc") {
			return filePipeline, ""
		}
	}
	for _, dir := range lay.ImageDirs {
		if rest, ok := strings.CutPrefix(rel, dir+"/"); ok && ext == ".png" {
			return fileImage, rest
		}
	}
	return fileNone, ""
}

// allowsDir reports whether a directory may contain indexed files.
func (lay Layout) allowsDir(rel string) bool {
	top, _, _ := strings.Cut(rel, "/")
	for _, dirs := range [][]string{lay.PipelineDirs, lay.ImageDirs} {
		for _, dir := range dirs {
			if top == dir {
				return true
			}
		}
	}
	return false
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// ignored matches rel against shell globs. A pattern also matches every path
// below a matching directory.
func ignored(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
		dir := rel
		for {
			dir = path.Dir(dir)
			if dir == "." || dir == "/" {
				break
			}
			if ok, _ := path.Match(pat, dir); ok {
				return true
			}
		}
	}
	return false
}
