// Package browser drives a stealth Chromium session with go-rod: launch with
// anti-automation flags, cookie injection, and page rendering with a
// human-paced scroll.
package browser
