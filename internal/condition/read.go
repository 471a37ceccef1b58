package condition

import (
	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/rhc"
	"github.com/nebula-dds/ddscore/internal/sample"
)

// ReadCondition triggers when its reader currently holds at least one
// buffered sample matching mask (spec.md §4.6).
type ReadCondition struct {
	baseCondition
	reader *entity.DataReader
	mask   rhc.ReadTakeMask
}

// NewReadCondition constructs a ReadCondition over mask and registers it
// to recheck its trigger on every cache mutation of reader.
func NewReadCondition(reader *entity.DataReader, mask rhc.ReadTakeMask) *ReadCondition {
	c := &ReadCondition{reader: reader, mask: mask}
	reader.OnChange(func() {
		c.recheck(c.Triggered())
	})
	return c
}

func (c *ReadCondition) Triggered() bool {
	return c.reader.HasMatching(c.mask)
}

// QueryCondition extends ReadCondition with a predicate evaluated against
// each candidate sample; it triggers only if some matching sample also
// satisfies predicate (spec.md §4.6).
type QueryCondition struct {
	ReadCondition
	predicate func(*sample.Sample) bool
}

// NewQueryCondition constructs a QueryCondition over mask and predicate.
func NewQueryCondition(reader *entity.DataReader, mask rhc.ReadTakeMask, predicate func(*sample.Sample) bool) *QueryCondition {
	c := &QueryCondition{predicate: predicate}
	c.reader = reader
	c.mask = mask
	reader.OnChange(func() {
		c.recheck(c.Triggered())
	})
	return c
}

func (c *QueryCondition) Triggered() bool {
	for _, s := range c.reader.Matching(c.mask) {
		if c.predicate(s) {
			return true
		}
	}
	return false
}
