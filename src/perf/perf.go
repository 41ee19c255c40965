package perf

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Timings for one request or one ingestion run. All methods are safe to call
// on a nil *RequestPerf, so code paths that run outside a request (CLI
// commands, tests) can skip setting one up.
type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	for rp.EndBlock() {
	}
	rp.End = time.Now()
}

func (rp *RequestPerf) Checkpoint(category, description string) {
	if rp == nil {
		return
	}
	now := time.Now()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
	})
}

func (rp *RequestPerf) StartBlock(category, description string) {
	if rp == nil {
		return
	}
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
}

// Ends the innermost open block. Returns false if there was none.
func (rp *RequestPerf) EndBlock() bool {
	if rp == nil {
		return false
	}
	for i := len(rp.Blocks) - 1; i >= 0; i -= 1 {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

func (rp *RequestPerf) Duration() time.Duration {
	if rp == nil {
		return 0
	}
	end := rp.End
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(rp.Start)
}

// Adds the total and per-category timings to a log event.
func (rp *RequestPerf) MarshalZerologObject(e *zerolog.Event) {
	if rp == nil {
		return
	}
	e.Float64("totalMs", float64(rp.Duration().Microseconds())/1000)
	byCategory := map[string]float64{}
	for i := range rp.Blocks {
		byCategory[rp.Blocks[i].Category] += rp.Blocks[i].DurationMs()
	}
	d := zerolog.Dict()
	for cat, ms := range byCategory {
		d.Float64(cat, ms)
	}
	e.Dict("categoriesMs", d)
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type perfContextKey struct{}

func AttachPerfToContext(ctx context.Context, rp *RequestPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, rp)
}

// Returns nil if the context carries no perf, which every method tolerates.
func ExtractPerf(ctx context.Context) *RequestPerf {
	if ctx == nil {
		return nil
	}
	rp, _ := ctx.Value(perfContextKey{}).(*RequestPerf)
	return rp
}
