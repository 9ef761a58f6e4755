package eveapi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the upstream timestamp format, always UTC.
const TimeLayout = "2006-01-02 15:04:05"

// Response is a generic upstream answer.
type Response struct {
	CurrentTime time.Time
	CachedUntil time.Time
	Result      map[string]any
}

// APIError is an <error> element returned by the upstream.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eveapi: error %d: %s", e.Code, e.Message)
}

type element struct {
	name     string
	attrs    []xml.Attr
	children []*element
	text     strings.Builder
}

func (e *element) attr(name string) string {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func parseTree(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: t.Attr}
			if n := len(stack); n > 0 {
				stack[n-1].children = append(stack[n-1].children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if n := len(stack); n > 0 {
				stack[n-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("eveapi: empty document")
	}
	return root, nil
}

// value converts an element into plain values: leaves become strings, rows and
// attributed elements become maps keyed by attribute name, and each rowset
// becomes a list stored under its name attribute.
func value(e *element) any {
	text := strings.TrimSpace(e.text.String())
	if len(e.children) == 0 && len(e.attrs) == 0 {
		return text
	}
	m := make(map[string]any, len(e.attrs)+len(e.children))
	for _, a := range e.attrs {
		m[a.Name.Local] = a.Value
	}
	if len(e.children) == 0 && text != "" {
		m["_text"] = text
	}
	addChildren(m, e.children)
	return m
}

func addChildren(m map[string]any, children []*element) {
	for _, c := range children {
		if c.name == "rowset" {
			name := c.attr("name")
			if name == "" {
				name = "rowset"
			}
			rows := make([]any, 0, len(c.children))
			for _, r := range c.children {
				rows = append(rows, value(r))
			}
			m[name] = rows
			continue
		}
		v := value(c)
		switch prev := m[c.name].(type) {
		case nil:
			m[c.name] = v
		case []any:
			m[c.name] = append(prev, v)
		default:
			m[c.name] = []any{prev, v}
		}
	}
}

// ParseResponse converts an upstream document into a Response. An <error>
// element is returned as *APIError.
func ParseResponse(body []byte) (*Response, error) {
	root, err := parseTree(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("eveapi: parse: %w", err)
	}
	if root.name != "eveapi" {
		return nil, fmt.Errorf("eveapi: unexpected root element %q", root.name)
	}
	if e := root.child("error"); e != nil {
		return nil, apiError(e.attr("code"), e.text.String())
	}
	resp := &Response{Result: map[string]any{}}
	if c := root.child("currentTime"); c != nil {
		resp.CurrentTime = parseTime(c.text.String())
	}
	if c := root.child("cachedUntil"); c != nil {
		resp.CachedUntil = parseTime(c.text.String())
	}
	if r := root.child("result"); r != nil {
		if m, ok := value(r).(map[string]any); ok {
			resp.Result = m
		}
	}
	return resp, nil
}

func apiError(code, msg string) *APIError {
	n, _ := strconv.Atoi(strings.TrimSpace(code))
	return &APIError{Code: n, Message: strings.TrimSpace(msg)}
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// envelope is the typed form of an upstream document.
type envelope[T any] struct {
	XMLName     xml.Name `xml:"eveapi"`
	CurrentTime string   `xml:"currentTime"`
	CachedUntil string   `xml:"cachedUntil"`
	Error       *struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
	Result T `xml:"result"`
}

func decode[T any](body []byte) (*T, time.Time, error) {
	var env envelope[T]
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("eveapi: parse: %w", err)
	}
	if env.Error != nil {
		return nil, time.Time{}, apiError(env.Error.Code, env.Error.Message)
	}
	return &env.Result, parseTime(env.CachedUntil), nil
}
