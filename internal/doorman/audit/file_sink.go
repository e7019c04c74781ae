package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
)

const fileDateLayout = "2006-01-02"

// FileSink appends one line per invocation to audit-YYYY-MM-DD.log under
// dir.  The date is the invocation's calendar day in loc.
type FileSink struct {
	dir string
	loc *time.Location

	mu sync.Mutex
}

func NewFileSink(dir string, loc *time.Location) *FileSink {
	if loc == nil {
		loc = time.UTC
	}
	return &FileSink{dir: dir, loc: loc}
}

// PathFor returns the file an invocation at t is written to.
func (s *FileSink) PathFor(t time.Time) string {
	return filepath.Join(s.dir, "audit-"+t.In(s.loc).Format(fileDateLayout)+".log")
}

func (s *FileSink) RecordInvocation(_ context.Context, rec store.InvocationRecord) error {
	if rec.InvokedAt.IsZero() {
		rec.InvokedAt = time.Now()
	}
	line := FormatLine(rec, s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(s.PathFor(rec.InvokedAt), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit line: %w", err)
	}
	return f.Close()
}

// FormatLine renders rec as a single newline-terminated line:
//
//	2026-02-15T12:00:00-08:00 id=... user=alice(1001) channel=2002 command=/lock outcome=success
func FormatLine(rec store.InvocationRecord, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(rec.InvokedAt.In(loc).Format(time.RFC3339))
	fmt.Fprintf(&b, " id=%s user=%s(%s) channel=%s command=/%s outcome=%s",
		rec.ID, sanitize(rec.UserName), rec.UserID, rec.ChannelID, rec.Command, rec.Outcome)
	if rec.Detail != "" {
		b.WriteString(" detail=")
		b.WriteString(strconv.Quote(rec.Detail))
	}
	b.WriteByte('\n')
	return b.String()
}

// sanitize keeps display names on one line and free of field separators.
func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return '_'
		}
		return r
	}, s)
}
