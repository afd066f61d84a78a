package maapipe

import (
	"github.com/jward/maapipe/internal/index"
	"github.com/jward/maapipe/internal/parser"
)

// Public aliases for the internal index and parser types used by the query
// and diagnostic API.

type Dialect = parser.Dialect
type Location = parser.Location
type Decl = parser.Decl
type Ref = parser.Ref
type InterfaceInfo = parser.InterfaceInfo
type Layer = index.Layer
type LayerTask = index.LayerTask
type Anchor = index.Anchor
type Resolution = index.Resolution
type Locales = index.Locales

const (
	DialectFramework = parser.DialectFramework
	DialectLegacy    = parser.DialectLegacy
)
