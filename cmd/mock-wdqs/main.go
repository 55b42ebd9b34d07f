package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/openenergytransition/qidmerge/internal/mockwdqs"
)

func main() {
	addr := defaultString("MOCK_WDQS_ADDR", ":8080")
	fixturePath := defaultString("MOCK_WDQS_FIXTURE", "")
	var failFirst int

	fs := pflag.NewFlagSet("mock-wdqs", pflag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixturePath, "fixture", fixturePath, "YAML fixture mapping property -> value -> entities (also supports env: MOCK_WDQS_FIXTURE)")
	fs.IntVar(&failFirst, "fail-first", 0, "Answer the first N queries with 503")
	_ = fs.Parse(os.Args[1:])

	fixture := mockwdqs.Fixture{}
	if fixturePath != "" {
		f, err := mockwdqs.LoadFixture(fixturePath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			os.Exit(1)
		}
		fixture = f
	}

	srv := mockwdqs.New(fixture)
	if failFirst > 0 {
		srv.FailNext(failFirst, http.StatusServiceUnavailable)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-wdqs listening on %s/sparql (fixture=%s properties=%d)\n", addr, fixturePath, len(fixture))
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
