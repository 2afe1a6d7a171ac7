package log

import (
	"fmt"
	"io"
)

// Grouper delimits named sections of output so hosts that understand
// grouping markers can fold them.
type Grouper interface {
	StartGroup(name string)
	EndGroup(name string)
}

// NoopGrouper doesn't group anything.
var NoopGrouper Grouper = noopGrouper{}

type noopGrouper struct{}

func (noopGrouper) StartGroup(string) {}
func (noopGrouper) EndGroup(string)   {}

// NewWriterGrouper returns a grouper that writes `::group::` workflow markers to w.
func NewWriterGrouper(w io.Writer) Grouper {
	return writerGrouper{w: w}
}

type writerGrouper struct {
	w io.Writer
}

func (g writerGrouper) StartGroup(name string) { fmt.Fprintf(g.w, "::group::%s\n", name) }
func (g writerGrouper) EndGroup(string)        { fmt.Fprintln(g.w, "::endgroup::") }

// NewLoggerGrouper returns a grouper that only logs the group boundaries.
func NewLoggerGrouper(logger Logger) Grouper {
	return loggerGrouper{logger: logger}
}

type loggerGrouper struct {
	logger Logger
}

func (g loggerGrouper) StartGroup(name string) { g.logger.Infof("%s", name) }
func (g loggerGrouper) EndGroup(name string)   { g.logger.Debugf("%s finished", name) }

// Group runs fn between the start and end markers of a named group.
func Group(g Grouper, name string, fn func() error) error {
	g.StartGroup(name)
	defer g.EndGroup(name)
	return fn()
}
