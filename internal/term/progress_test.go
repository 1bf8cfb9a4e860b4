// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package term

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/datfetch/pkg/types"
)

func TestCounter(t *testing.T) {
	tests := []struct {
		index, total int
		want         string
	}{
		{1, 9, "1/9"},
		{3, 10, " 3/10"},
		{42, 100, " 42/100"},
		{100, 100, "100/100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Counter(tt.index, tt.total))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.00 kB"},
		{1_500_000, "1.50 MB"},
		{2_000_000_000, "2.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n))
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "--- B/s", FormatSpeed(-1))
	assert.Equal(t, "1.00 MB/s", FormatSpeed(1_000_000))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "0s", FormatETA(100, 10, 10))
	assert.Equal(t, "--:--", FormatETA(0, 10, 5))
	assert.Equal(t, "5s", FormatETA(100, 1000, 500))
	assert.Equal(t, "2m0s", FormatETA(10, 1300, 100))
}

func TestPercentColor(t *testing.T) {
	assert.NotEqual(t, PercentColor(0), PercentColor(1))
	assert.Equal(t, PercentColor(0), PercentColor(0.05))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := NewProgressLine(&buf)
	p.now = clock.now

	task := types.TransferTask{DisplayName: "Game A", Index: 2, Total: 12}
	p.Start(task, 0, 2000)
	assert.Contains(t, buf.String(), "Downloading")
	assert.Contains(t, buf.String(), " 2/12: Game A")

	clock.t = clock.t.Add(time.Second)
	p.Advance(1000)
	assert.Contains(t, p.View(), " 50%")
	assert.Contains(t, p.View(), "1.00 kB/2.00 kB")
	assert.Contains(t, p.View(), "ETA 1s")
	assert.Contains(t, p.View(), "1.00 kB/s")

	p.Finish(task)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "\r")
}

func TestProgressLine_Resume(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressLine(&buf)

	p.Start(types.TransferTask{DisplayName: "Game B", Index: 1, Total: 1}, 500, 1000)
	assert.Contains(t, buf.String(), "Resuming")
	assert.Contains(t, p.View(), " 50%")
}

func TestProgressLine_ThrottlesRedraw(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := NewProgressLine(&buf)
	p.now = clock.now

	p.Start(types.TransferTask{DisplayName: "Game C", Index: 1, Total: 1}, 0, 100)
	draws := strings.Count(buf.String(), "\r")
	p.Advance(10)
	p.Advance(10)
	assert.Equal(t, draws, strings.Count(buf.String(), "\r"))

	clock.t = clock.t.Add(redrawInterval)
	p.Advance(10)
	assert.Equal(t, draws+1, strings.Count(buf.String(), "\r"))
}
