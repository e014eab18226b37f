package log_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/nnsuite/nnpipe/log"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debug(v ...interface{}) { r.add("debug", v) }
func (r *recorder) Info(v ...interface{})  { r.add("info", v) }
func (r *recorder) Warn(v ...interface{})  { r.add("warn", v) }
func (r *recorder) Error(v ...interface{}) { r.add("error", v) }

func (r *recorder) add(level string, v []interface{}) {
	r.lines = append(r.lines, level+" "+fmt.Sprint(v...))
}

func TestAdapt(t *testing.T) {
	l := log.GetLogger()
	assert.Same(t, l, log.Adapt(l))

	var r recorder
	fl := log.Adapt(&r)
	fl.Info("started")
	fl.WithField("element", "sink").Warn("dropped")
	fl.Debug("details")

	assert.Len(t, r.lines, 3)
	assert.Equal(t, "info started", r.lines[0])
	assert.True(t, strings.HasPrefix(r.lines[1], "warn "))
	assert.Contains(t, r.lines[1], "element=sink")
	assert.Equal(t, "debug details", r.lines[2])
}

func TestSetDebug(t *testing.T) {
	log.SetDebug(true)
	defer log.SetDebug(false)
	assert.Equal(t, logrus.DebugLevel, log.GetLogger().GetLevel())
}
