// Package param recognizes parameter-annotated assignment lines in notebook code cells.
//
// A parameter line looks like:
//
//	name = 'default' #@param {type: "string"}
//
// Matching is line oriented. A line decomposes into a prefix (leading whitespace),
// an identifier, the current value token, the annotation info (everything after
// "@param") and a reserved suffix. Lines that do not match are never touched.
//
// The annotation info has the shape of an object literal with unquoted keys. It is
// decoded by a small hand-written splitter rather than a structured-data parser:
//
//	info, ok := param.DecodeInfo(`{type: "string", min: 0}`)
//	info.Type() // "string"
//
// Known limitations:
//   - a '#' inside a string literal ahead of the real comment mis-parses
//   - commas inside quoted info values and nested braces mis-split
package param
