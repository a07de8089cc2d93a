package probetype

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/jonboulle/clockwork"
)

const logScanSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["path", "regex", "period"],
	"properties": {
		"path":      {"type": "string", "minLength": 1},
		"regex":     {"type": "string", "minLength": 1},
		"threshold": {"type": "integer", "minimum": 1},
		"period":    {"type": "integer", "minimum": 1}
	}
}`

// logScan watches a log file inside the tenant sandbox and fires when the
// configured pattern matches at least threshold times within period seconds.
type logScan struct {
	schema *openapi3.Schema
}

func NewLogScan() Type {
	return &logScan{schema: mustSchema(logScanSchema)}
}

func (t *logScan) Name() string      { return "logscan" }
func (t *logScan) RunInGlobal() bool { return false }

func (t *logScan) ValidateConfig(config map[string]interface{}) error {
	if err := validateAgainst(t.schema, config); err != nil {
		return err
	}
	if _, err := regexp.Compile(stringOption(config, "regex")); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

func (t *logScan) NewInstance(opts InstanceOptions) (Instance, error) {
	if err := t.ValidateConfig(opts.Config); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(stringOption(opts.Config, "regex"))
	if err != nil {
		return nil, err
	}
	return &logScanInstance{
		opts:      opts,
		path:      stringOption(opts.Config, "path"),
		re:        re,
		threshold: intOption(opts.Config, "threshold", 1),
		period:    time.Duration(intOption(opts.Config, "period", 60)) * time.Second,
		poll:      time.Second,
		clock:     clockwork.NewRealClock(),
	}, nil
}

type logScanInstance struct {
	opts      InstanceOptions
	path      string
	re        *regexp.Regexp
	threshold int
	period    time.Duration
	poll      time.Duration
	clock     clockwork.Clock

	offset  int64
	partial []byte
	matches []time.Time
}

// Run tails the file from its current end. A shrunken file is treated as
// rotated and read from the start again.
func (i *logScanInstance) Run(ctx context.Context) error {
	if info, err := os.Stat(i.path); err == nil {
		i.offset = info.Size()
	}
	ticker := i.clock.NewTicker(i.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := i.scan(); err != nil && i.opts.Log != nil {
				i.opts.Log.WithError(err).WithField("path", i.path).Warn("logscan read failed")
			}
		}
	}
}

func (i *logScanInstance) scan() error {
	f, err := os.Open(i.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < i.offset {
		i.offset = 0
		i.partial = nil
	}
	if _, err := f.Seek(i.offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		i.offset += int64(len(line))
		if err != nil {
			// Hold an unterminated tail until the writer finishes the line.
			i.partial = append(i.partial, line...)
			if err == io.EOF {
				return nil
			}
			return err
		}
		full := append(i.partial, line...)
		i.partial = nil
		if i.re.Match(full) {
			i.recordMatch(string(full))
		}
	}
}

func (i *logScanInstance) recordMatch(line string) {
	now := i.clock.Now()
	cutoff := now.Add(-i.period)
	kept := i.matches[:0]
	for _, t := range i.matches {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	i.matches = append(kept, now)
	if len(i.matches) < i.threshold {
		return
	}
	count := len(i.matches)
	i.matches = i.matches[:0]
	i.opts.Emit(EventData{
		Message: fmt.Sprintf("Log %q matched /%s/ %d time(s) in %s.", i.path, i.re.String(), count, i.period),
		Details: map[string]interface{}{
			"path":    i.path,
			"regex":   i.re.String(),
			"matches": count,
			"line":    line,
		},
	})
}
