package reembed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Add(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 100, 10)

	p.Start()
	p.Add(25)
	p.Add(25)
	p.Add(50)

	assert.Greater(t, p.Elapsed(), time.Duration(0))
	assert.Contains(t, buf.String(), "100/100 chunks")
	assert.Contains(t, buf.String(), "100.0%")
}

func TestProgress_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 100, 10)

	p.Start()
	p.Add(150)

	assert.Contains(t, buf.String(), "100/100")
	assert.NotContains(t, buf.String(), "150")
}

func TestProgress_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 1000, 100)
	p.Start()

	p.Add(50)
	assert.Empty(t, buf.String())

	p.Add(50)
	assert.Contains(t, buf.String(), "100/1000")

	buf.Reset()
	p.Add(20)
	assert.Empty(t, buf.String())
}

func TestProgress_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 100, 1000)

	p.Start()
	p.Add(40)
	p.Finish()

	assert.Contains(t, buf.String(), "40/100")
	assert.Contains(t, buf.String(), "chunks/s")
	assert.Contains(t, buf.String(), "\n")
}

func TestProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 0, 10)

	p.Start()
	p.Finish()

	assert.Contains(t, buf.String(), "0/0")
}

func TestProgress_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 100, 10)

	p.Add(10)
	p.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, p.Elapsed())
}
