package perf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlocks(t *testing.T) {
	rp := MakeNewRequestPerf("ProcessTranscript", "POST", "/api/process-transcript")
	rp.StartBlock("LLM", "Complete")
	rp.StartBlock("SQL", "Insert ideas")
	time.Sleep(time.Millisecond)
	assert.True(t, rp.EndBlock())
	rp.Checkpoint("PROGRESS", "saving")
	rp.EndRequest()

	assert.Len(t, rp.Blocks, 3)
	assert.Equal(t, "SQL", rp.Blocks[1].Category)
	for _, b := range rp.Blocks {
		assert.False(t, b.End.IsZero())
	}
	assert.False(t, rp.EndBlock())
	assert.GreaterOrEqual(t, rp.Blocks[0].Duration(), rp.Blocks[1].Duration())
}

func TestNilPerf(t *testing.T) {
	var rp *RequestPerf
	assert.NotPanics(t, func() {
		rp.StartBlock("SQL", "nothing")
		rp.Checkpoint("SQL", "nothing")
		rp.EndBlock()
		rp.EndRequest()
	})
	assert.Equal(t, time.Duration(0), rp.Duration())
}

func TestContext(t *testing.T) {
	assert.Nil(t, ExtractPerf(context.Background()))

	rp := MakeNewRequestPerf("Health", "GET", "/api/health")
	ctx := AttachPerfToContext(context.Background(), rp)
	assert.Same(t, rp, ExtractPerf(ctx))
}
