package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide writes step-by-step instructions for copying the
// Instagram cookie string out of a logged-in browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"INSTAGRAM COOKIE GUIDE",
		rule,
		"",
		"igfetch sends your browser's Instagram cookies with every request.",
		"",
		"1. Log in at https://www.instagram.com in a desktop browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Network tab: reload the page and click any request to instagram.com.",
		"4. Under Request Headers, copy the whole value of the 'Cookie:' line.",
		"",
		"The string looks like:",
		"   csrftoken=...; ds_user_id=...; sessionid=...; mid=...",
		"",
		"Required: " + strings.Join(RequiredCookies, ", "),
		"",
		"These cookies grant full access to the account. Use a secondary",
		"account, never share the string, and refresh it when runs start",
		"failing with login pages.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// WriteQuickGuide writes the one-line version of the guide
func WriteQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 → Network → reload → any instagram.com request → Request Headers → copy the Cookie value")
	fmt.Fprintf(w, "Needs at least: %s. Type 'help' for the full guide.\n", strings.Join(RequiredCookies, ", "))
}
