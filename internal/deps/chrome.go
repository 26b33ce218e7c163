package deps

import "strings"

// chromeCandidates is searched on PATH, in order, when no browser path is
// configured. chromedp looks for the same names on Linux.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// CheckChrome reports the browser the meeting bot will launch: the
// configured one if set, otherwise the first candidate on PATH.
func CheckChrome(configured string) Status {
	st := Status{Name: "Chrome", Description: "Joins meetings through an automated browser"}
	if path := strings.TrimSpace(configured); path != "" {
		st.Command = path
		resolved, err := locate(path)
		if err != nil {
			st.Detail = "configured browser: " + err.Error()
			return st
		}
		st.Available, st.Path = true, resolved
		return st
	}
	for _, name := range chromeCandidates {
		if resolved, err := locate(name); err == nil {
			st.Command, st.Path, st.Available = name, resolved, true
			return st
		}
	}
	st.Command = chromeCandidates[0]
	st.Detail = "no Chrome or Chromium binary found on PATH"
	return st
}
