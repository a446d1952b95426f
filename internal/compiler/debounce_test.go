package compiler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/schedule"
)

func TestDebounceCoalescesBurst(t *testing.T) {
	clock := schedule.NewFakeClock()
	d := NewDebouncer(schedule.NewScheduler(clock), DefaultSettleWindow)

	buffers := model.SourceBuffers{}
	compilations := 0
	var lastDoc string
	recompile := func() {
		compilations++
		lastDoc = Compile(buffers, false)
	}

	// N edits inside the settling window produce exactly one compilation,
	// using the last edit's content.
	for i := 0; i < 10; i++ {
		buffers.JS = fmt.Sprintf("let edit = %d;", i)
		d.Trigger(recompile)
		clock.Advance(50 * time.Millisecond)
	}
	assert.Equal(t, 0, compilations)

	clock.Advance(DefaultSettleWindow)
	assert.Equal(t, 1, compilations)
	assert.Contains(t, lastDoc, "let edit = 9;")
}

func TestDebounceSeparateBursts(t *testing.T) {
	clock := schedule.NewFakeClock()
	d := NewDebouncer(schedule.NewScheduler(clock), DefaultSettleWindow)

	compilations := 0
	d.Trigger(func() { compilations++ })
	clock.Advance(time.Second)
	d.Trigger(func() { compilations++ })
	clock.Advance(time.Second)

	assert.Equal(t, 2, compilations)
}

func TestDebounceCloseCancelsPending(t *testing.T) {
	clock := schedule.NewFakeClock()
	d := NewDebouncer(schedule.NewScheduler(clock), DefaultSettleWindow)

	compilations := 0
	d.Trigger(func() { compilations++ })
	d.Close()
	clock.Advance(time.Minute)
	assert.Equal(t, 0, compilations)

	// Triggers after close are no-ops.
	d.Trigger(func() { compilations++ })
	clock.Advance(time.Minute)
	assert.Equal(t, 0, compilations)
}
