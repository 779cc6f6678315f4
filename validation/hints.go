package validation

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/movinture/latent-logic/agentloop"
)

// DataHints summarizes where a run got its data from.
type DataHints struct {
	Hosts       []string `json:"hosts"`
	StatusCodes []int    `json:"status_codes,omitempty"`
	ToolErrors  int      `json:"tool_errors"`
}

const httpRequestTool = "http_request"

// HintsFrom derives hints from a run's tool calls and results. Slices are
// sorted and de-duplicated.
func HintsFrom(rec *agentloop.AgentRunRecord) DataHints {
	hints := DataHints{Hosts: []string{}}
	if rec == nil {
		return hints
	}

	hosts := map[string]bool{}
	for _, call := range rec.ToolCalls {
		if call.Name != httpRequestTool {
			continue
		}
		raw, _ := agentloop.GetStringArg(call.Arguments, "url")
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Hostname() == "" {
			continue
		}
		hosts[strings.ToLower(u.Hostname())] = true
	}
	for h := range hosts {
		hints.Hosts = append(hints.Hosts, h)
	}
	sort.Strings(hints.Hosts)

	codes := map[int]bool{}
	for _, res := range rec.ToolResults {
		if res.IsError() {
			hints.ToolErrors++
			continue
		}
		if res.Name != httpRequestTool {
			continue
		}
		if code, ok := statusCode(res.Output); ok {
			codes[code] = true
		}
	}
	for c := range codes {
		hints.StatusCodes = append(hints.StatusCodes, c)
	}
	sort.Ints(hints.StatusCodes)
	return hints
}

// statusCode reads the "Status: NNN" line rendered by the http_request tool.
func statusCode(output string) (int, bool) {
	rest, ok := strings.CutPrefix(output, "Status: ")
	if !ok {
		return 0, false
	}
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		rest = rest[:i]
	}
	code, err := strconv.Atoi(rest)
	return code, err == nil
}
