package index

import (
	"time"

	"go.uber.org/zap"

	"github.com/jward/maapipe/internal/content"
	"github.com/jward/maapipe/internal/parser"
)

type options struct {
	dialect  parser.Dialect
	logger   *zap.Logger
	debounce time.Duration
	ignore   []string
	onReload func(content.Stats)
}

// Option configures a Bundle or LanguageBundle.
type Option func(*options)

// WithDialect selects the pipeline dialect. The default is the framework
// dialect.
func WithDialect(d parser.Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDebounce sets the delay between a file event and its flush.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithIgnore skips files whose root-relative path matches one of the globs.
func WithIgnore(globs ...string) Option {
	return func(o *options) {
		o.ignore = append(o.ignore, globs...)
	}
}

// WithOnReload registers a callback run after every flush that changed
// something.
func WithOnReload(fn func(content.Stats)) Option {
	return func(o *options) {
		o.onReload = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		debounce: content.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) managerOptions() []content.Option {
	return []content.Option{
		content.WithLogger(o.logger),
		content.WithDebounce(o.debounce),
	}
}
