package internal

// Batcher holds back synchronous renders while a batch is open. Work
// scheduled inside it is rendered once, when the outermost batch closes.
type Batcher struct {
	depth    int
	deferred bool
}

func NewBatcher() *Batcher {
	return &Batcher{}
}

func (b *Batcher) IsBatching() bool {
	return b.depth > 0
}

// Defer records that the open batch held back a render.
func (b *Batcher) Defer() {
	b.deferred = true
}

// Batch runs fn. Closing the outermost batch calls flush if anything was
// deferred in the meantime, and returns its error.
func (b *Batcher) Batch(fn func(), flush func() error) (err error) {
	b.depth++
	defer func() {
		b.depth--
		if b.depth > 0 || !b.deferred {
			return
		}
		b.deferred = false
		if flush != nil {
			err = flush()
		}
	}()

	fn()
	return nil
}
