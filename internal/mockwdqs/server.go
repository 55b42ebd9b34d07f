// Package mockwdqs serves a small fixture-backed imitation of the Wikidata Query
// Service SPARQL endpoint for local runs and integration tests.
package mockwdqs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// Entity is one fixture entity.
type Entity struct {
	QID          string            `yaml:"qid"`
	Descriptions map[string]string `yaml:"descriptions"`
	Labels       map[string]string `yaml:"labels"`
}

// Fixture maps property -> identifier value -> entities.
type Fixture map[string]map[string][]Entity

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// Call records a query received by the server.
type Call struct {
	Method    string
	UserAgent string
	Property  string
	Values    []string
	Languages []string
}

type fault struct {
	status     int
	retryAfter string
	body       string
}

// Server answers SELECT queries shaped like the ones internal/wdqs sends.
type Server struct {
	mu      sync.Mutex
	fixture Fixture
	calls   []Call
	faults  []fault
}

func New(f Fixture) *Server {
	if f == nil {
		f = Fixture{}
	}
	return &Server{fixture: f}
}

// Handler returns the router serving /sparql.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/sparql", s.handleSPARQL)
	r.Post("/sparql", s.handleSPARQL)
	return r
}

// FailNext makes the next n queries answer with status.
func (s *Server) FailNext(n int, status int) {
	s.queueFaults(n, fault{status: status, body: http.StatusText(status)})
}

// ThrottleNext makes the next n queries answer 429 with a Retry-After header.
func (s *Server) ThrottleNext(n int, retryAfterSeconds int) {
	s.queueFaults(n, fault{
		status:     http.StatusTooManyRequests,
		retryAfter: strconv.Itoa(retryAfterSeconds),
		body:       "Too Many Requests",
	})
}

// TimeoutNext makes the next n queries fail the way the service reports a query
// that ran out of evaluation time.
func (s *Server) TimeoutNext(n int) {
	s.queueFaults(n, fault{
		status: http.StatusInternalServerError,
		body:   "java.util.concurrent.TimeoutException",
	})
}

func (s *Server) queueFaults(n int, f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.faults = append(s.faults, f)
	}
}

// Calls returns a snapshot of queries received.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) handleSPARQL(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	q, err := parseQuery(r.Form.Get("query"))
	if err != nil {
		http.Error(w, "MalformedQueryException: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:    r.Method,
		UserAgent: r.Header.Get("User-Agent"),
		Property:  q.property,
		Values:    q.values,
		Languages: q.languages,
	})
	var f *fault
	if len(s.faults) > 0 {
		f = &s.faults[0]
		s.faults = s.faults[1:]
	}
	byValue := s.fixture[q.property]
	s.mu.Unlock()

	if f != nil {
		if f.retryAfter != "" {
			w.Header().Set("Retry-After", f.retryAfter)
		}
		http.Error(w, f.body, f.status)
		return
	}

	bindings := make([]map[string]any, 0)
	for _, v := range q.values {
		for _, e := range byValue[v] {
			bindings = append(bindings, entityBindings(v, e, q.languages)...)
		}
	}
	w.Header().Set("Content-Type", "application/sparql-results+json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"head":    map[string]any{"vars": []string{"item", "code", "desc", "label"}},
		"results": map[string]any{"bindings": bindings},
	})
}

func entityBindings(code string, e Entity, langs []string) []map[string]any {
	base := func() map[string]any {
		return map[string]any{
			"item": map[string]string{"type": "uri", "value": "http://www.wikidata.org/entity/" + e.QID},
			"code": map[string]string{"type": "literal", "value": code},
		}
	}
	var out []map[string]any
	for _, lang := range langs {
		d, hasDesc := e.Descriptions[lang]
		l, hasLabel := e.Labels[lang]
		if !hasDesc && !hasLabel {
			continue
		}
		b := base()
		if hasDesc {
			b["desc"] = map[string]string{"type": "literal", "xml:lang": lang, "value": d}
		}
		if hasLabel {
			b["label"] = map[string]string{"type": "literal", "xml:lang": lang, "value": l}
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		out = append(out, base())
	}
	return out
}

type parsedQuery struct {
	property  string
	values    []string
	languages []string
}

var (
	propertyRe = regexp.MustCompile(`\?item wdt:(P[1-9][0-9]*) \?code`)
	valuesRe   = regexp.MustCompile(`(?s)VALUES \?code \{(.*?)\}\s*\n`)
	langsRe    = regexp.MustCompile(`LANG\(\?desc\) IN \(([^)]*)\)`)
)

func parseQuery(q string) (parsedQuery, error) {
	var out parsedQuery
	m := propertyRe.FindStringSubmatch(q)
	if m == nil {
		return out, fmt.Errorf("no property pattern")
	}
	out.property = m[1]

	vm := valuesRe.FindStringSubmatch(q)
	if vm == nil {
		return out, fmt.Errorf("no VALUES block")
	}
	vals, err := parseLiterals(vm[1])
	if err != nil {
		return out, err
	}
	out.values = vals

	if lm := langsRe.FindStringSubmatch(q); lm != nil {
		langs, err := parseLiterals(lm[1])
		if err != nil {
			return out, err
		}
		out.languages = langs
	}
	return out, nil
}

// parseLiterals reads a whitespace or comma separated run of double-quoted literals.
func parseLiterals(s string) ([]string, error) {
	var out []string
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == ',' {
			i++
			continue
		}
		if c != '"' {
			return nil, fmt.Errorf("unexpected %q at %d", c, i)
		}
		i++
		var b strings.Builder
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '"' {
				closed = true
				i++
				break
			}
			if c == '\\' && i+1 < len(s) {
				switch s[i+1] {
				case '\\':
					b.WriteByte('\\')
				case '"':
					b.WriteByte('"')
				case 'n':
					b.WriteByte('\n')
				case 'r':
					b.WriteByte('\r')
				case 't':
					b.WriteByte('\t')
				case 'b':
					b.WriteByte('\b')
				case 'f':
					b.WriteByte('\f')
				default:
					return nil, fmt.Errorf("unsupported escape \\%c", s[i+1])
				}
				i += 2
				continue
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, fmt.Errorf("unterminated literal")
		}
		out = append(out, b.String())
	}
	return out, nil
}
