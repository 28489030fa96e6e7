// Package promptdef compiles prompt definition documents: a YAML frontmatter
// block delimited by "---" lines followed by a template body.
//
// The frontmatter declares the prompt's name, client, type, tool list and turn
// budget, plus "inputs" and "output" shapes written in a compact type
// shorthand ("string?", "integer[]", "low | high") or as nested YAML
// mappings and one-element sequences. Those shapes are lowered to JSON Schema.
package promptdef
