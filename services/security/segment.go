package security

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"mvdan.cc/sh/v3/syntax"
)

const defaultSegmentCacheSize = 512

// Segmenter 从 shell 命令行中提取每个子命令的命令名。
//
// 两种方式取并集：按 shell 元字符切分（不依赖语法是否合法），以及用 bash
// 语法解析器遍历所有调用表达式（能看到嵌套的命令替换和子 shell）。
// 结果只与输入字符串有关，因此可以缓存。
type Segmenter struct {
	cache *lru.Cache[string, []string]
}

// NewSegmenter size <= 0 时使用默认缓存大小
func NewSegmenter(size int) *Segmenter {
	if size <= 0 {
		size = defaultSegmentCacheSize
	}
	cache, err := lru.New[string, []string](size)
	if err != nil {
		panic("security: segment cache: " + err.Error())
	}
	return &Segmenter{cache: cache}
}

// Commands 返回命令行中所有子命令的命令名 token；返回的切片不得修改
func (s *Segmenter) Commands(line string) []string {
	if names, ok := s.cache.Get(line); ok {
		return names
	}

	set := newNameSet()
	s.collectLine(line, 0, set)

	s.cache.Add(line, set.names)
	return set.names
}

// Invocation 返回不经 shell 解释、直接按参数列表调用时需要检查的命令 token：
// 去掉 exec、env、sudo 一类前缀之后真正执行的命令，以及 "sh -c" 脚本中的命令
func (s *Segmenter) Invocation(words []string) []string {
	set := newNameSet()
	s.collectCall(words, 0, false, set)
	return set.names
}

// 嵌套 "sh -c" 的最大展开层数
const maxScriptDepth = 4

type nameSet struct {
	names []string
	seen  map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{seen: make(map[string]struct{})}
}

func (n *nameSet) add(name string) {
	if name == "" {
		return
	}
	if _, ok := n.seen[name]; ok {
		return
	}
	n.seen[name] = struct{}{}
	n.names = append(n.names, name)
}

func (s *Segmenter) collectLine(line string, depth int, set *nameSet) {
	for _, segment := range splitSegments(line) {
		s.collectCall(strings.Fields(segment), depth, false, set)
	}
	for _, words := range parsedCalls(line) {
		s.collectCall(words, depth, true, set)
	}
}

// collectCall unescape 时额外加入去掉反斜杠的命令名，解析器保留了原始转义
func (s *Segmenter) collectCall(words []string, depth int, unescape bool, set *nameSet) {
	name, args, wrappers := commandWords(words)
	for _, wrapper := range wrappers {
		set.add(wrapper)
	}
	set.add(name)
	if unescape {
		set.add(strings.ReplaceAll(name, `\`, ""))
	}
	if depth >= maxScriptDepth {
		return
	}
	if script, ok := inlineScript(name, args); ok {
		s.collectLine(script, depth+1, set)
	}
}

// 两字符的分隔符需要先于单字符匹配
var (
	twoCharSeparators = []string{"&&", "||", "$(", "<(", ">(", ";;"}
	oneCharSeparators = ";|&`()\n\r{}"
)

// splitSegments 按 shell 元字符切分命令行
func splitSegments(line string) []string {
	var segments []string
	var b strings.Builder
	flush := func() {
		if seg := strings.TrimSpace(b.String()); seg != "" {
			segments = append(segments, seg)
		}
		b.Reset()
	}

next:
	for i := 0; i < len(line); {
		for _, sep := range twoCharSeparators {
			if strings.HasPrefix(line[i:], sep) {
				flush()
				i += len(sep)
				continue next
			}
		}
		if strings.IndexByte(oneCharSeparators, line[i]) >= 0 {
			flush()
			i++
			continue
		}
		b.WriteByte(line[i])
		i++
	}
	flush()
	return segments
}

// segmentCommand 返回一个片段的命令 token
func segmentCommand(segment string) string {
	name, _, _ := commandWords(strings.Fields(segment))
	return name
}

// 把后续参数当作另一个命令执行的前缀命令，值为需要带参数的选项
var commandPrefixes = map[string]map[string]bool{
	"exec":    {"-a": true},
	"command": {},
	"builtin": {},
	"nohup":   {},
	"time":    {},
	"nice":    {"-n": true},
	"env":     {"-u": true, "-C": true},
	"sudo": {
		"-u": true, "-g": true, "-C": true, "-D": true, "-h": true,
		"-p": true, "-r": true, "-t": true, "-U": true,
	},
}

// commandWords 跳过前导的 "!"、变量赋值和前缀命令（连同它们的选项），
// 返回真正执行的命令、其参数以及被跳过的前缀命令
func commandWords(words []string) (name string, args []string, wrappers []string) {
	for i := 0; i < len(words); i++ {
		word := strings.Trim(words[i], `"'`)
		if word == "!" || isAssignment(word) {
			continue
		}
		argFlags, ok := commandPrefixes[strings.ToLower(BaseName(word))]
		if !ok {
			return word, words[i+1:], wrappers
		}
		wrappers = append(wrappers, word)
		for i+1 < len(words) && strings.HasPrefix(words[i+1], "-") {
			i++
			if argFlags[words[i]] {
				i++
			}
		}
	}
	return "", nil, wrappers
}

func isAssignment(field string) bool {
	eq := strings.IndexByte(field, '=')
	if eq <= 0 {
		return false
	}
	for i, c := range field[:eq] {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// parsedCalls 用 bash 语法解析命令行，返回每个调用表达式开头的字面量单词；
// 遇到展开即截止，解析失败返回 nil
func parsedCalls(line string) [][]string {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(line), "")
	if err != nil {
		return nil
	}

	var calls [][]string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		words := make([]string, 0, len(call.Args))
		for _, arg := range call.Args {
			word, ok := literalWord(arg)
			if !ok {
				break
			}
			words = append(words, word)
		}
		if len(words) > 0 {
			calls = append(calls, words)
		}
		return true
	})
	return calls
}

// literalWord 拼接不含展开的单词；含参数展开或命令替换时返回 false
func literalWord(word *syntax.Word) (string, bool) {
	var b strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				b.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return b.String(), true
}
