// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import "context"

// Func is one step of a lookup.
//
// [*Client.Lookup] chains three steps with [Compose3]: a [Query] becomes a
// request URI, the URI becomes an [*http.Response], and the response becomes
// the body string. [Compose2] chains two.
//
// A step that receives a response owns it and must close the body on every
// path, including errors (see [readBodyFunc]).
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter turns a plain function into a [Func], for example to
// post-process a lookup body.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
