package dedupe

// Option applies a configuration option to the watermark deduper.
type Option func(*watermark)

// WithStart resumes from a previously committed watermark.
func WithStart(last int64) Option {
	return func(w *watermark) {
		w.last = last
	}
}
