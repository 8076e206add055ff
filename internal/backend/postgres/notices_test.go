package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"cursorbridge/cli/internal/cursor"
)

func TestNoticesBecomeCursorWarnings(t *testing.T) {
	r := newNoticeRouter()
	pc, other := new(pgconn.PgConn), new(pgconn.PgConn)

	r.handle(pc, &pgconn.Notice{Severity: "NOTICE", Message: "before watch"})
	sink := r.watch(pc)
	r.handle(pc, &pgconn.Notice{Severity: "NOTICE", Message: "table t does not exist, skipping"})
	r.handle(other, &pgconn.Notice{Severity: "NOTICE", Message: "other connection"})

	stream := cursor.NewStream([]cursor.Column{{Name: "n"}}, 0)
	sink.attach(stream)
	r.handle(pc, &pgconn.Notice{Severity: "WARNING", Message: "nonstandard use", Detail: "line 1"})
	r.release(pc)
	r.handle(pc, &pgconn.Notice{Severity: "NOTICE", Message: "after release"})

	assert.Equal(t, []string{
		"NOTICE: table t does not exist, skipping",
		"WARNING: nonstandard use (line 1)",
	}, stream.Warnings())
}
