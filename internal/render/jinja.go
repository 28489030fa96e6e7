package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/namelens/promptc/internal/promptdef"
)

// Prompt bodies are written in Jinja. pongo2 executes them, so Compile first
// rewrites the Jinja-only constructs into pongo2 syntax:
//
//	{{ expr }}              {{ __promptc_fmt(expr) }}
//	x|join(", ")            x|__promptc_join:__promptc_args(", ")
//	x is not defined        __promptc_isnot("defined", x)
//	a ~ b                   __promptc_cat(a, b)
//	a if c else b           __promptc_cond(c, a, b)
//	[1, 2] / {"k": v}       __promptc_list(1, 2) / __promptc_dict("k", v)
//	loop.index              forloop.Counter
//	{% for %}..{% else %}   {% for %}..{% empty %}
//	{% raw %}               {% verbatim %}
//
// Every filter and test resolves to a function in builtins.go, so values
// print and compare the way Jinja prints and compares them.

const helperPrefix = "__promptc_"

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokSymbol
)

type token struct {
	kind tokenKind
	val  string
}

// node is a single token or a bracketed group.
type node struct {
	tok  token
	open string
	kids []node
}

var closers = map[string]string{"(": ")", "[": "]", "{": "}"}

// operatorWords never start an operand.
var operatorWords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true, "if": true, "else": true,
}

var loopFields = map[string]string{
	"index":     "Counter",
	"index0":    "Counter0",
	"revindex":  "Revcounter",
	"revindex0": "Revcounter0",
	"first":     "First",
	"last":      "Last",
}

var mappingMethods = map[string]string{"items": "items", "keys": "keys", "values": "values"}

var endRaw = regexp.MustCompile(`\{%(-?)\s*endraw\s*(-?)%\}`)

func (n node) isGroup() bool { return n.open != "" }

func (n node) isSym(val string) bool {
	return !n.isGroup() && n.tok.kind == tokSymbol && n.tok.val == val
}

func (n node) isIdent(val string) bool {
	return !n.isGroup() && n.tok.kind == tokIdent && n.tok.val == val
}

func (n node) isLiteral() bool {
	return !n.isGroup() && (n.tok.kind == tokNumber || n.tok.kind == tokString)
}

func identNode(s string) node { return node{tok: token{kind: tokIdent, val: s}} }
func symNode(s string) node   { return node{tok: token{kind: tokSymbol, val: s}} }
func strNode(s string) node   { return node{tok: token{kind: tokString, val: s}} }

// call builds helperPrefix+name(args...).
func call(name string, args ...[]node) []node {
	var kids []node
	for i, arg := range args {
		if i > 0 {
			kids = append(kids, symNode(","))
		}
		kids = append(kids, arg...)
	}
	return []node{identNode(helperPrefix + name), {open: "(", kids: kids}}
}

func compileErrorf(format string, args ...any) error {
	return promptdef.NewError(promptdef.KindTemplateCompile, fmt.Sprintf(format, args...))
}

// translate rewrites a Jinja template into the pongo2 dialect.
func translate(source string) (string, error) {
	tr := &translator{src: source}
	if err := tr.run(); err != nil {
		return "", err
	}
	return tr.out.String(), nil
}

type translator struct {
	src    string
	pos    int
	out    strings.Builder
	blocks []string
	loops  int
}

func (tr *translator) run() error {
	for tr.pos < len(tr.src) {
		next := indexOpener(tr.src[tr.pos:])
		if next < 0 {
			tr.out.WriteString(tr.src[tr.pos:])
			return nil
		}
		tr.out.WriteString(tr.src[tr.pos : tr.pos+next])
		tr.pos += next

		var err error
		switch tr.src[tr.pos+1] {
		case '{':
			err = tr.variable()
		case '%':
			err = tr.block()
		default:
			err = tr.comment()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func indexOpener(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && (s[i+1] == '{' || s[i+1] == '%' || s[i+1] == '#') {
			return i
		}
	}
	return -1
}

// openTag consumes a two-byte opener plus an optional trim marker.
func (tr *translator) openTag() bool {
	tr.pos += 2
	if tr.pos < len(tr.src) && tr.src[tr.pos] == '-' {
		tr.pos++
		return true
	}
	return false
}

func (tr *translator) emitTag(open string, trimLeft bool, body string, close string, trimRight bool) {
	tr.out.WriteString(open)
	if trimLeft {
		tr.out.WriteByte('-')
	}
	tr.out.WriteByte(' ')
	tr.out.WriteString(body)
	tr.out.WriteByte(' ')
	if trimRight {
		tr.out.WriteByte('-')
	}
	tr.out.WriteString(close)
}

func (tr *translator) comment() error {
	start := tr.pos
	end := strings.Index(tr.src[tr.pos+2:], "#}")
	if end < 0 {
		return compileErrorf("unclosed comment at offset %d", start)
	}
	tr.pos += 2 + end + 2
	return nil
}

func (tr *translator) variable() error {
	start := tr.pos
	trimLeft := tr.openTag()
	toks, _, trimRight, err := tr.lex("}}")
	if err != nil {
		return err
	}
	if len(toks) == 0 {
		return compileErrorf("empty expression at offset %d", start)
	}
	expr, err := tr.expression(toks)
	if err != nil {
		return err
	}
	tr.emitTag("{{", trimLeft, joinNodes(call("fmt", expr)), "}}", trimRight)
	return nil
}

func (tr *translator) block() error {
	start := tr.pos
	trimLeft := tr.openTag()
	toks, raw, trimRight, err := tr.lex("%}")
	if err != nil {
		return err
	}
	if len(toks) == 0 || toks[0].kind != tokIdent {
		return compileErrorf("malformed block tag at offset %d", start)
	}

	var body string
	switch name := toks[0].val; name {
	case "if", "elif":
		expr, err := tr.condition(name, toks[1:])
		if err != nil {
			return err
		}
		if name == "if" {
			tr.blocks = append(tr.blocks, "if")
		}
		body = name + " " + expr
	case "else":
		body = "else"
		if tr.top() == "for" {
			body = "empty"
		}
	case "endif":
		tr.pop("if")
		body = "endif"
	case "for":
		body, err = tr.forTag(toks[1:])
		if err != nil {
			return err
		}
	case "endfor":
		if tr.pop("for") {
			tr.loops--
		}
		body = "endfor"
	case "set":
		body, err = tr.setTag(toks[1:], raw)
		if err != nil {
			return err
		}
	case "raw":
		return tr.rawBlock(trimLeft, trimRight)
	default:
		body = raw
	}
	tr.emitTag("{%", trimLeft, body, "%}", trimRight)
	return nil
}

func (tr *translator) top() string {
	if len(tr.blocks) == 0 {
		return ""
	}
	return tr.blocks[len(tr.blocks)-1]
}

func (tr *translator) pop(kind string) bool {
	if tr.top() != kind {
		return false
	}
	tr.blocks = tr.blocks[:len(tr.blocks)-1]
	return true
}

func (tr *translator) condition(tag string, toks []token) (string, error) {
	if len(toks) == 0 {
		return "", compileErrorf("%s tag needs a condition", tag)
	}
	expr, err := tr.expression(toks)
	if err != nil {
		return "", err
	}
	return joinNodes(expr), nil
}

func (tr *translator) forTag(toks []token) (string, error) {
	in := -1
	for i, t := range toks {
		if t.kind == tokIdent && t.val == "in" {
			in = i
			break
		}
	}
	if in < 0 {
		return "", compileErrorf("for loop is missing 'in'")
	}

	var targets []string
	for i, t := range toks[:in] {
		if i%2 == 1 {
			if t.kind != tokSymbol || t.val != "," {
				return "", compileErrorf("malformed for loop target")
			}
			continue
		}
		if t.kind != tokIdent {
			return "", compileErrorf("malformed for loop target")
		}
		targets = append(targets, t.val)
	}
	if len(targets) == 0 || len(targets) > 2 || in%2 == 0 {
		return "", compileErrorf("for loop takes one or two targets")
	}

	nodes, err := nest(toks[in+1:])
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if n.isIdent("if") || n.isIdent("recursive") {
			return "", compileErrorf("for loop %q clause is not supported", n.tok.val)
		}
	}
	// key, value loops walk the mapping itself, in key order.
	if len(targets) == 2 {
		k := len(nodes)
		if k < 4 || !nodes[k-3].isSym(".") || !nodes[k-2].isIdent("items") ||
			nodes[k-1].open != "(" || len(nodes[k-1].kids) != 0 {
			return "", compileErrorf("for loop with two targets must iterate mapping.items()")
		}
		nodes = nodes[:k-3]
	}
	if len(nodes) == 0 {
		return "", compileErrorf("for loop needs an iterable")
	}

	iter, err := tr.rewrite(nodes)
	if err != nil {
		return "", err
	}
	tr.blocks = append(tr.blocks, "for")
	tr.loops++
	if len(targets) == 2 {
		return "for " + targets[0] + ", " + targets[1] + " in " + joinNodes(iter) + " sorted", nil
	}
	return "for " + targets[0] + " in " + joinNodes(call("iter", iter)), nil
}

func (tr *translator) setTag(toks []token, raw string) (string, error) {
	if len(toks) < 3 || toks[0].kind != tokIdent || toks[1].kind != tokSymbol || toks[1].val != "=" {
		return raw, nil
	}
	expr, err := tr.expression(toks[2:])
	if err != nil {
		return "", err
	}
	return "set " + toks[0].val + " = " + joinNodes(expr), nil
}

// rawBlock copies everything up to endraw untouched. pongo2 only knows the
// bare verbatim tags, so trim markers are applied here.
func (tr *translator) rawBlock(trimLeft, trimRight bool) error {
	const space = " \t\r\n"
	loc := endRaw.FindStringSubmatchIndex(tr.src[tr.pos:])
	if loc == nil {
		return compileErrorf("raw block is missing endraw")
	}
	content := tr.src[tr.pos : tr.pos+loc[0]]
	if trimRight {
		content = strings.TrimLeft(content, space)
	}
	if loc[3] > loc[2] {
		content = strings.TrimRight(content, space)
	}
	if trimLeft {
		before := strings.TrimRight(tr.out.String(), space)
		tr.out.Reset()
		tr.out.WriteString(before)
	}
	tr.out.WriteString("{% verbatim %}")
	tr.out.WriteString(content)
	tr.out.WriteString("{% endverbatim %}")

	tr.pos += loc[1]
	if loc[5] > loc[4] {
		for tr.pos < len(tr.src) && strings.IndexByte(space, tr.src[tr.pos]) >= 0 {
			tr.pos++
		}
	}
	return nil
}

// lex tokenizes tag content up to close. raw is the untouched content.
func (tr *translator) lex(close string) (toks []token, raw string, trimRight bool, err error) {
	start := tr.pos
	for {
		for tr.pos < len(tr.src) && strings.IndexByte(" \t\r\n", tr.src[tr.pos]) >= 0 {
			tr.pos++
		}
		if tr.pos >= len(tr.src) {
			return nil, "", false, compileErrorf("tag opened at offset %d is not closed with %q", start-2, close)
		}
		rest := tr.src[tr.pos:]
		if strings.HasPrefix(rest, "-"+close) {
			raw = strings.TrimSpace(tr.src[start:tr.pos])
			tr.pos += 1 + len(close)
			return toks, raw, true, nil
		}
		if strings.HasPrefix(rest, close) {
			raw = strings.TrimSpace(tr.src[start:tr.pos])
			tr.pos += len(close)
			return toks, raw, false, nil
		}

		afterDot := len(toks) > 0 && toks[len(toks)-1].kind == tokSymbol && toks[len(toks)-1].val == "."
		tok, err := tr.next(afterDot)
		if err != nil {
			return nil, "", false, err
		}
		toks = append(toks, tok)
	}
}

var symbols2 = []string{"**", "//", "==", "!=", "<=", ">="}

func (tr *translator) next(afterDot bool) (token, error) {
	c := tr.src[tr.pos]
	switch {
	case c == '"' || c == '\'':
		return tr.stringLiteral(c)
	case isDigit(c):
		end := tr.pos
		for end < len(tr.src) && isDigit(tr.src[end]) {
			end++
		}
		if !afterDot && end+1 < len(tr.src) && tr.src[end] == '.' && isDigit(tr.src[end+1]) {
			end++
			for end < len(tr.src) && isDigit(tr.src[end]) {
				end++
			}
		}
		tok := token{kind: tokNumber, val: tr.src[tr.pos:end]}
		tr.pos = end
		return tok, nil
	case c == '_' || isLetter(c):
		end := tr.pos
		for end < len(tr.src) && (tr.src[end] == '_' || isLetter(tr.src[end]) || isDigit(tr.src[end])) {
			end++
		}
		tok := token{kind: tokIdent, val: tr.src[tr.pos:end]}
		tr.pos = end
		return tok, nil
	}

	for _, s := range symbols2 {
		if strings.HasPrefix(tr.src[tr.pos:], s) {
			tr.pos += len(s)
			return token{kind: tokSymbol, val: s}, nil
		}
	}
	if strings.IndexByte("()[]{}.,|:+-*/%<>=~!", c) >= 0 {
		tr.pos++
		return token{kind: tokSymbol, val: string(c)}, nil
	}
	return token{}, compileErrorf("unexpected character %q at offset %d", c, tr.pos)
}

func (tr *translator) stringLiteral(quote byte) (token, error) {
	start := tr.pos
	var b strings.Builder
	for i := tr.pos + 1; i < len(tr.src); i++ {
		c := tr.src[i]
		switch {
		case c == quote:
			tr.pos = i + 1
			return token{kind: tokString, val: b.String()}, nil
		case c == '\\' && i+1 < len(tr.src):
			i++
			switch e := tr.src[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return token{}, compileErrorf("unterminated string literal at offset %d", start)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// nest groups bracketed tokens.
func nest(toks []token) ([]node, error) {
	type frame struct {
		open string
		kids []node
	}
	stack := []frame{{}}
	for _, t := range toks {
		if t.kind == tokSymbol {
			switch t.val {
			case "(", "[", "{":
				stack = append(stack, frame{open: t.val})
				continue
			case ")", "]", "}":
				top := stack[len(stack)-1]
				if len(stack) == 1 || closers[top.open] != t.val {
					return nil, compileErrorf("unbalanced %q", t.val)
				}
				stack = stack[:len(stack)-1]
				parent := &stack[len(stack)-1]
				parent.kids = append(parent.kids, node{open: top.open, kids: top.kids})
				continue
			}
		}
		cur := &stack[len(stack)-1]
		cur.kids = append(cur.kids, node{tok: t})
	}
	if len(stack) != 1 {
		return nil, compileErrorf("unclosed %q", stack[len(stack)-1].open)
	}
	return stack[0].kids, nil
}

func (tr *translator) expression(toks []token) ([]node, error) {
	nodes, err := nest(toks)
	if err != nil {
		return nil, err
	}
	return tr.rewrite(nodes)
}

// rewrite translates a comma separated list of expressions.
func (tr *translator) rewrite(nodes []node) ([]node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	parts := splitTop(nodes, ",")
	if len(parts) > 1 && len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	var out []node
	for i, part := range parts {
		seg, err := tr.segment(part)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, symNode(","))
		}
		out = append(out, seg...)
	}
	return out, nil
}

func (tr *translator) segment(nodes []node) ([]node, error) {
	if len(nodes) == 0 {
		return nil, compileErrorf("empty expression")
	}

	if i := indexIdent(nodes, "if"); i > 0 {
		cond, other := nodes[i+1:], []node(nil)
		if j := indexIdent(cond, "else"); j >= 0 {
			cond, other = cond[:j], cond[j+1:]
		}
		a, err := tr.segment(nodes[:i])
		if err != nil {
			return nil, err
		}
		c, err := tr.segment(cond)
		if err != nil {
			return nil, err
		}
		b := []node{identNode(helperPrefix + "undefined")}
		if other != nil {
			if b, err = tr.segment(other); err != nil {
				return nil, err
			}
		}
		return call("cond", c, a, b), nil
	}

	var out []node
	for i := 0; i < len(nodes); {
		n := nodes[i]
		if startsOperand(n) {
			operand, next, err := tr.operand(nodes, i)
			if err != nil {
				return nil, err
			}
			out = append(out, operand...)
			i = next
			continue
		}
		switch {
		case n.isSym("**"):
			n = symNode("^")
		case n.isSym("//"):
			return nil, compileErrorf("floor division is not supported")
		case n.isSym("|"):
			return nil, compileErrorf("filter is missing a value")
		case n.isIdent("is"):
			return nil, compileErrorf("test is missing a value")
		}
		out = append(out, n)
		i++
	}
	return concat(out)
}

func startsOperand(n node) bool {
	if n.isGroup() || n.isLiteral() {
		return true
	}
	return n.tok.kind == tokIdent && !operatorWords[n.tok.val]
}

// operand translates a primary and its trailing attribute, subscript,
// call, filter and test applications.
func (tr *translator) operand(nodes []node, i int) ([]node, int, error) {
	var cur []node
	n := nodes[i]
	i++
	switch {
	case n.open == "(":
		inner, err := tr.rewrite(n.kids)
		if err != nil {
			return nil, 0, err
		}
		cur = call("id", inner)
	case n.open == "[":
		inner, err := tr.rewrite(n.kids)
		if err != nil {
			return nil, 0, err
		}
		cur = call("list", inner)
	case n.open == "{":
		var err error
		if cur, err = tr.dict(n.kids); err != nil {
			return nil, 0, err
		}
	case n.tok.kind == tokIdent:
		cur, i = tr.name(nodes, i-1)
	default:
		cur = []node{n}
	}

	for i < len(nodes) {
		n := nodes[i]
		switch {
		case n.isSym(".") && i+1 < len(nodes) && !nodes[i+1].isGroup() &&
			(nodes[i+1].tok.kind == tokIdent || nodes[i+1].tok.kind == tokNumber):
			attr := nodes[i+1]
			if m, ok := mappingMethods[attr.tok.val]; ok && i+2 < len(nodes) &&
				nodes[i+2].open == "(" && len(nodes[i+2].kids) == 0 {
				cur = call(m, cur)
				i += 3
				continue
			}
			cur = append(cur, n, attr)
			i += 2
		case n.open == "[" || n.open == "(":
			inner, err := tr.rewrite(n.kids)
			if err != nil {
				return nil, 0, err
			}
			cur = append(cur, node{open: n.open, kids: inner})
			i++
		case n.isSym("|"):
			f, next, err := tr.filter(nodes, i+1)
			if err != nil {
				return nil, 0, err
			}
			cur = append(cur, f...)
			i = next
		case n.isIdent("is"):
			var err error
			if cur, i, err = tr.test(cur, nodes, i+1); err != nil {
				return nil, 0, err
			}
		default:
			return cur, i, nil
		}
	}
	return cur, i, nil
}

func (tr *translator) name(nodes []node, i int) ([]node, int) {
	switch n := nodes[i]; n.tok.val {
	case "True", "true":
		return []node{identNode("true")}, i + 1
	case "False", "false":
		return []node{identNode("false")}, i + 1
	case "None", "none":
		return []node{identNode(helperPrefix + "undefined")}, i + 1
	case "loop":
		if tr.loops == 0 || i+2 >= len(nodes) || !nodes[i+1].isSym(".") || nodes[i+2].isGroup() {
			break
		}
		attr := nodes[i+2].tok.val
		if field, ok := loopFields[attr]; ok {
			return []node{identNode("forloop"), symNode("."), identNode(field)}, i + 3
		}
		if attr == "length" {
			sum := []node{
				identNode("forloop"), symNode("."), identNode("Counter"), symNode("+"),
				identNode("forloop"), symNode("."), identNode("Revcounter0"),
			}
			return call("id", sum), i + 3
		}
	}
	return []node{nodes[i]}, i + 1
}

func (tr *translator) dict(kids []node) ([]node, error) {
	var args [][]node
	for _, pair := range splitTop(kids, ",") {
		if len(pair) == 0 {
			continue
		}
		kv := splitTop(pair, ":")
		if len(kv) != 2 {
			return nil, compileErrorf("mapping literal entries need 'key: value'")
		}
		k, err := tr.segment(kv[0])
		if err != nil {
			return nil, err
		}
		v, err := tr.segment(kv[1])
		if err != nil {
			return nil, err
		}
		args = append(args, k, v)
	}
	return call("dict", args...), nil
}

func (tr *translator) filter(nodes []node, i int) ([]node, int, error) {
	if i >= len(nodes) || nodes[i].isGroup() || nodes[i].tok.kind != tokIdent {
		return nil, 0, compileErrorf("expected a filter name after '|'")
	}
	name := nodes[i].tok.val
	if _, ok := jinjaFilters[name]; !ok {
		return nil, 0, compileErrorf("unknown filter %q", name)
	}
	out := []node{symNode("|"), identNode(helperPrefix + name)}
	i++

	if i < len(nodes) && nodes[i].open == "(" {
		if kids := nodes[i].kids; len(kids) > 0 {
			if indexSym(kids, "=") >= 0 {
				return nil, 0, compileErrorf("filter %q: keyword arguments are not supported", name)
			}
			args, err := tr.rewrite(kids)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, symNode(":"))
			out = append(out, call("args", args)...)
		}
		i++
	}
	return out, i, nil
}

func (tr *translator) test(subject []node, nodes []node, i int) ([]node, int, error) {
	fn := "is"
	if i < len(nodes) && nodes[i].isIdent("not") {
		fn = "isnot"
		i++
	}
	if i >= len(nodes) || nodes[i].isGroup() || nodes[i].tok.kind != tokIdent {
		return nil, 0, compileErrorf("expected a test name after 'is'")
	}
	name := nodes[i].tok.val
	if _, ok := jinjaTests[name]; !ok {
		return nil, 0, compileErrorf("unknown test %q", name)
	}
	i++

	args := [][]node{{strNode(name)}, subject}
	switch {
	case i < len(nodes) && nodes[i].open == "(":
		if len(nodes[i].kids) > 0 {
			rest, err := tr.rewrite(nodes[i].kids)
			if err != nil {
				return nil, 0, err
			}
			args = append(args, rest)
		}
		i++
	case i < len(nodes) && nodes[i].isLiteral():
		args = append(args, []node{nodes[i]})
		i++
	}
	return call(fn, args...), i, nil
}

// concat turns a ~ b into a call, splitting at operators that bind looser.
func concat(nodes []node) ([]node, error) {
	if indexSym(nodes, "~") < 0 {
		return nodes, nil
	}
	var out, run []node
	flush := func() error {
		if indexSym(run, "~") >= 0 {
			parts := splitTop(run, "~")
			for _, p := range parts {
				if len(p) == 0 {
					return compileErrorf("'~' needs a value on both sides")
				}
			}
			out = append(out, call("cat", parts...)...)
		} else {
			out = append(out, run...)
		}
		run = nil
		return nil
	}
	for _, n := range nodes {
		if isLooseOperator(n) {
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, n)
			continue
		}
		run = append(run, n)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func isLooseOperator(n node) bool {
	if n.isGroup() {
		return false
	}
	switch n.tok.kind {
	case tokSymbol:
		switch n.tok.val {
		case "==", "!=", "<", ">", "<=", ">=":
			return true
		}
	case tokIdent:
		switch n.tok.val {
		case "and", "or", "not", "in":
			return true
		}
	}
	return false
}

func splitTop(nodes []node, sep string) [][]node {
	parts := [][]node{nil}
	for _, n := range nodes {
		if n.isSym(sep) {
			parts = append(parts, nil)
			continue
		}
		parts[len(parts)-1] = append(parts[len(parts)-1], n)
	}
	return parts
}

func indexSym(nodes []node, val string) int {
	for i, n := range nodes {
		if n.isSym(val) {
			return i
		}
	}
	return -1
}

func indexIdent(nodes []node, val string) int {
	for i, n := range nodes {
		if n.isIdent(val) {
			return i
		}
	}
	return -1
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func joinNodes(nodes []node) string {
	var b strings.Builder
	writeNodes(&b, nodes)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []node) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch {
		case n.isGroup():
			b.WriteString(n.open)
			writeNodes(b, n.kids)
			b.WriteString(closers[n.open])
		case n.tok.kind == tokString && strings.Contains(n.tok.val, "\n"):
			// pongo2 string literals cannot hold a newline.
			var lines [][]node
			for _, line := range strings.Split(n.tok.val, "\n") {
				lines = append(lines, []node{strNode(line)})
			}
			writeNodes(b, call("lines", lines...))
		case n.tok.kind == tokString:
			b.WriteByte('"')
			b.WriteString(stringEscaper.Replace(n.tok.val))
			b.WriteByte('"')
		default:
			b.WriteString(n.tok.val)
		}
	}
}
