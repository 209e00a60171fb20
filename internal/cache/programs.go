package cache

import (
	"github.com/recera/reflow/pkg/expr"
)

// programVersion is mixed into every program key; bump it when the
// encoding written by expr.Evaluator.Encode changes.
const programVersion = "reflow-expr-v1"

// Programs adapts a Cache to expr.ProgramStore.
type Programs struct {
	c *Cache
}

var _ expr.ProgramStore = (*Programs)(nil)

// Programs returns the program store backed by c.
func (c *Cache) Programs() *Programs {
	return &Programs{c: c}
}

// ProgramKey returns the key a program for text is stored under.
func ProgramKey(text string) string {
	return Key(programVersion, text)
}

// LoadProgram returns the stored program for text. Blobs that fail to
// decode are dropped.
func (p *Programs) LoadProgram(text string) (*expr.Evaluator, bool) {
	key := ProgramKey(text)
	data, ok := p.c.Get(key)
	if !ok {
		return nil, false
	}
	ev, err := expr.Decode(text, data)
	if err != nil {
		p.c.logger.Warn("drop undecodable program", "key", key, "err", err)
		p.c.Delete(key)
		return nil, false
	}
	return ev, true
}

// SaveProgram stores ev under its text.
func (p *Programs) SaveProgram(ev *expr.Evaluator) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return p.c.Put(ProgramKey(ev.Text), label(ev.Text), data)
}

func label(text string) string {
	const max = 60
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}
