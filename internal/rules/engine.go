// Package rules 判断拦截到的请求是否在捕获范围内。
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode URL 条件的匹配方式
type Mode string

const (
	ModeGlob   Mode = "glob"
	ModePrefix Mode = "prefix"
	ModeRegex  Mode = "regex"
	ModeExact  Mode = "exact"
)

// Condition 单个 URL 条件
type Condition struct {
	Mode    Mode
	Pattern string
	re      *regexp.Regexp
}

// ParseCondition 解析 "mode:pattern"，无前缀时按 glob 处理
func ParseCondition(s string) (Condition, error) {
	c := Condition{Mode: ModeGlob, Pattern: s}
	if m, p, ok := strings.Cut(s, ":"); ok {
		switch Mode(m) {
		case ModeGlob, ModePrefix, ModeRegex, ModeExact:
			c.Mode, c.Pattern = Mode(m), p
		}
	}
	var err error
	switch c.Mode {
	case ModeRegex:
		c.re, err = regexp.Compile(c.Pattern)
	case ModeGlob:
		c.re, err = regexp.Compile(globToRegex(c.Pattern))
	}
	if err != nil {
		return Condition{}, fmt.Errorf("bad scope pattern %q: %w", s, err)
	}
	return c, nil
}

// Match 判断 URL 是否满足条件
func (c Condition) Match(url string) bool {
	switch c.Mode {
	case ModePrefix:
		return strings.HasPrefix(url, c.Pattern)
	case ModeExact:
		return url == c.Pattern
	default:
		return c.re != nil && c.re.MatchString(url)
	}
}

// Ctx 评估上下文
type Ctx struct {
	URL    string
	Method string
}

// Engine 捕获范围：include 为空表示全部包含，exclude 优先
type Engine struct {
	include []Condition
	exclude []Condition
	methods map[string]struct{}
}

// New 编译捕获范围
func New(include, exclude, methods []string) (*Engine, error) {
	e := &Engine{}
	for _, s := range include {
		c, err := ParseCondition(s)
		if err != nil {
			return nil, err
		}
		e.include = append(e.include, c)
	}
	for _, s := range exclude {
		c, err := ParseCondition(s)
		if err != nil {
			return nil, err
		}
		e.exclude = append(e.exclude, c)
	}
	if len(methods) > 0 {
		e.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			e.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	return e, nil
}

// InScope 请求是否需要记录，nil Engine 记录全部
func (e *Engine) InScope(ctx Ctx) bool {
	if e == nil {
		return true
	}
	if e.methods != nil {
		if _, ok := e.methods[strings.ToUpper(ctx.Method)]; !ok {
			return false
		}
	}
	for _, c := range e.exclude {
		if c.Match(ctx.URL) {
			return false
		}
	}
	if len(e.include) == 0 {
		return true
	}
	for _, c := range e.include {
		if c.Match(ctx.URL) {
			return true
		}
	}
	return false
}

func globToRegex(p string) string {
	var b strings.Builder
	b.WriteByte('^')
	for i, part := range strings.Split(p, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteByte('$')
	return b.String()
}
