package postgres

import (
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"cursorbridge/cli/internal/cursor"
)

// notices routes server notices such as RAISE NOTICE output to the
// result cursor of the query running on the connection that received them.
// Pools created by Open install it as their OnNotice handler.
var notices = newNoticeRouter()

type noticeRouter struct {
	mu    sync.Mutex
	sinks map[*pgconn.PgConn]*noticeSink
}

func newNoticeRouter() *noticeRouter {
	return &noticeRouter{sinks: map[*pgconn.PgConn]*noticeSink{}}
}

// noticeSink buffers notices until the result cursor exists.
type noticeSink struct {
	mu      sync.Mutex
	pending []string
	target  *cursor.Stream
}

func (r *noticeRouter) watch(pc *pgconn.PgConn) *noticeSink {
	s := &noticeSink{}
	r.mu.Lock()
	r.sinks[pc] = s
	r.mu.Unlock()
	return s
}

func (r *noticeRouter) release(pc *pgconn.PgConn) {
	r.mu.Lock()
	delete(r.sinks, pc)
	r.mu.Unlock()
}

func (r *noticeRouter) handle(pc *pgconn.PgConn, n *pgconn.Notice) {
	r.mu.Lock()
	s := r.sinks[pc]
	r.mu.Unlock()
	if s != nil {
		s.add(formatNotice(n))
	}
}

func (s *noticeSink) add(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target != nil {
		s.target.AddWarning(msg)
		return
	}
	s.pending = append(s.pending, msg)
}

// attach hands buffered notices to stream and forwards later ones directly.
func (s *noticeSink) attach(stream *cursor.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.pending {
		stream.AddWarning(msg)
	}
	s.pending = nil
	s.target = stream
}

func formatNotice(n *pgconn.Notice) string {
	msg := n.Severity + ": " + n.Message
	if n.Detail != "" {
		msg += " (" + n.Detail + ")"
	}
	return msg
}
