package history

import (
	"io"

	"github.com/kamiliarsyad/isofuzz/internal/trace"
)

// Translate runs the full trace-to-history pass: one streaming read of in,
// then encoding of the surviving transactions to out.
func Translate(in io.Reader, out io.Writer, enc *Encoder, opts ...TranslatorOption) error {
	t := NewTranslator(opts...)
	if err := t.Consume(trace.NewReader(in)); err != nil {
		return err
	}
	return enc.Encode(out, t.History())
}
